package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// ruleColumns scans and encodes the price rule columns shared by the sales
// and coupons tables. NUMERIC NULLs map to decimal.NullDecimal.
type ruleColumns struct {
	kind           string
	value          decimal.Decimal
	maxDiscount    decimal.NullDecimal
	minOrderAmount decimal.NullDecimal
	validFrom      *time.Time
	validUntil     *time.Time
}

func (c *ruleColumns) dest() []any {
	return []any{&c.kind, &c.value, &c.maxDiscount, &c.minOrderAmount, &c.validFrom, &c.validUntil}
}

func (c *ruleColumns) rule(scope pricing.Scope) pricing.PriceRule {
	return pricing.PriceRule{
		Kind:           pricing.DiscountKind(c.kind),
		Value:          c.value,
		MaxDiscount:    fromNull(c.maxDiscount),
		MinOrderAmount: fromNull(c.minOrderAmount),
		ValidFrom:      c.validFrom,
		ValidUntil:     c.validUntil,
		Scope:          scope,
	}
}

func ruleArgs(r pricing.PriceRule) []any {
	return []any{string(r.Kind), r.Value, toNull(r.MaxDiscount), toNull(r.MinOrderAmount), r.ValidFrom, r.ValidUntil}
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
