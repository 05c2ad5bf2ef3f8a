package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Apply returns the discount the rule grants on base. The result is rounded
// half-to-even to 2 decimal places and always lies in [0, base].
func Apply(rule PriceRule, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return zero, errors.Wrapf(ErrInvalidArgument, "base amount %s is negative", base)
	}

	var amount decimal.Decimal
	switch rule.Kind {
	case DiscountPercentage:
		amount = base.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount != nil {
			amount = decimal.Min(amount, *rule.MaxDiscount)
		}
	case DiscountFlatAmount:
		amount = decimal.Min(rule.Value, base)
	default:
		return zero, errors.Wrapf(ErrInvalidArgument, "unsupported discount kind %q", rule.Kind)
	}

	return clamp(amount.RoundBank(2), base), nil
}

// FinalPrice returns base minus the discount granted by rule.
func FinalPrice(rule PriceRule, base decimal.Decimal) (decimal.Decimal, error) {
	discount, err := Apply(rule, base)
	if err != nil {
		return zero, err
	}
	return base.Sub(discount), nil
}

// clamp keeps d within [0, limit].
func clamp(d, limit decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	if d.GreaterThan(limit) {
		return limit
	}
	return d
}
