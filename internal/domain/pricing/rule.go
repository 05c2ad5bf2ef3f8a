// Package pricing holds the discount rule shared by sales and coupons and the
// pure arithmetic that turns a rule and an amount into a discount.
package pricing

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned for malformed rules and negative amounts.
var ErrInvalidArgument = errors.New("invalid argument")

// DiscountKind enumerates the supported discount shapes.
type DiscountKind string

const (
	// DiscountPercentage takes Value percent (0-100) off the base amount.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFlatAmount takes a fixed monetary Value off, never below zero.
	DiscountFlatAmount DiscountKind = "flat_amount"
)

// ScopeKind is the breadth of a rule's applicability.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeCategory ScopeKind = "category"
	ScopeProduct  ScopeKind = "product"
)

// Scope binds a ScopeKind to its target. TargetID is empty for global scope.
type Scope struct {
	Kind     ScopeKind
	TargetID string
}

// GlobalScope returns a scope matching every product.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// CategoryScope returns a scope matching products of the given category.
func CategoryScope(categoryID string) Scope {
	return Scope{Kind: ScopeCategory, TargetID: categoryID}
}

// ProductScope returns a scope matching a single product.
func ProductScope(productID string) Scope {
	return Scope{Kind: ScopeProduct, TargetID: productID}
}

// Matches reports whether the scope covers the given product.
func (s Scope) Matches(productID, categoryID string) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeCategory:
		return s.TargetID != "" && s.TargetID == categoryID
	case ScopeProduct:
		return s.TargetID != "" && s.TargetID == productID
	default:
		return false
	}
}

// Specificity ranks scopes: product > category > global. Unknown kinds rank
// below global.
func (s Scope) Specificity() int {
	switch s.Kind {
	case ScopeProduct:
		return 3
	case ScopeCategory:
		return 2
	case ScopeGlobal:
		return 1
	default:
		return 0
	}
}

func (s Scope) validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.TargetID != "" {
			return errors.Wrap(ErrInvalidArgument, "global scope must not have a target")
		}
		return nil
	case ScopeCategory, ScopeProduct:
		if s.TargetID == "" {
			return errors.Wrapf(ErrInvalidArgument, "%s scope requires a target id", s.Kind)
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidArgument, "unknown scope %q", s.Kind)
	}
}

// PriceRule is one discount rule. Optional fields are nil when unset.
type PriceRule struct {
	Kind           DiscountKind
	Value          decimal.Decimal
	MaxDiscount    *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Scope          Scope
}

// Validate checks the rule invariants enforced at write time.
func (r PriceRule) Validate() error {
	switch r.Kind {
	case DiscountPercentage:
		if r.Value.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidArgument, "percentage value %s exceeds 100", r.Value)
		}
	case DiscountFlatAmount:
	default:
		return errors.Wrapf(ErrInvalidArgument, "unknown discount kind %q", r.Kind)
	}
	if r.Value.IsNegative() {
		return errors.Wrapf(ErrInvalidArgument, "discount value %s is negative", r.Value)
	}
	if r.MaxDiscount != nil && r.MaxDiscount.IsNegative() {
		return errors.Wrapf(ErrInvalidArgument, "max discount %s is negative", r.MaxDiscount)
	}
	if r.MinOrderAmount != nil && r.MinOrderAmount.IsNegative() {
		return errors.Wrapf(ErrInvalidArgument, "min order amount %s is negative", r.MinOrderAmount)
	}
	if err := CheckAmount("discount value", r.Value); err != nil {
		return err
	}
	if r.MaxDiscount != nil {
		if err := CheckAmount("max discount", *r.MaxDiscount); err != nil {
			return err
		}
	}
	if r.MinOrderAmount != nil {
		if err := CheckAmount("min order amount", *r.MinOrderAmount); err != nil {
			return err
		}
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidFrom.After(*r.ValidUntil) {
		return errors.Wrap(ErrInvalidArgument, "valid_from is after valid_until")
	}
	return r.Scope.validate()
}

// MaxAmount is the largest money amount that can be stored.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// CheckAmount rejects amounts with more than 2 decimal places or a magnitude
// above MaxAmount. Trailing zeros are fine.
func CheckAmount(field string, v decimal.Decimal) error {
	if !v.Round(2).Equal(v) {
		return errors.Wrapf(ErrInvalidArgument, "%s %s has more than 2 decimal places", field, v)
	}
	if v.Abs().GreaterThan(MaxAmount) {
		return errors.Wrapf(ErrInvalidArgument, "%s %s exceeds %s", field, v, MaxAmount)
	}
	return nil
}

// ActiveAt reports whether t falls inside [ValidFrom, ValidUntil]. A missing
// bound is unbounded on that side. When both bounds are equal only that exact
// instant matches.
func (r PriceRule) ActiveAt(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && t.After(*r.ValidUntil) {
		return false
	}
	return true
}

// MeetsMinOrder reports whether amount satisfies MinOrderAmount.
func (r PriceRule) MeetsMinOrder(amount decimal.Decimal) bool {
	return r.MinOrderAmount == nil || amount.GreaterThanOrEqual(*r.MinOrderAmount)
}
