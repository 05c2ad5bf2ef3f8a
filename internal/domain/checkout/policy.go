package checkout

import (
	"github.com/go-faster/errors"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// Stacking decides how a coupon combines with sale prices.
type Stacking string

const (
	// StackingStack applies sales to lines first, then the coupon to the
	// discounted subtotal. Minimum order amounts are checked after sales.
	StackingStack Stacking = "stack"
	// StackingExclusive grants either the sales or the coupon, whichever
	// saves more. The coupon is evaluated on the list-price subtotal and
	// ties go to the sales.
	StackingExclusive Stacking = "exclusive"
)

// ParseStacking parses a configured policy name. Empty means StackingStack.
func ParseStacking(s string) (Stacking, error) {
	switch Stacking(s) {
	case "", StackingStack:
		return StackingStack, nil
	case StackingExclusive:
		return StackingExclusive, nil
	default:
		return "", errors.Wrapf(pricing.ErrInvalidArgument, "unknown stacking policy %q", s)
	}
}
