// Package coupon validates order-level coupon codes and records redemptions in
// an append-only usage ledger.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// Coupon is a user-entered code redeemable at order level. Rule.Scope is
// always global.
type Coupon struct {
	ID           string
	Code         string
	Description  string
	Rule         pricing.PriceRule
	UsageLimit   *int
	PerUserLimit *int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the write-time invariants of a coupon.
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return errors.Wrap(ErrInvalidArgument, "coupon code is required")
	}
	if c.Rule.Scope.Kind != pricing.ScopeGlobal {
		return errors.Wrapf(ErrInvalidArgument, "coupon scope must be global, got %q", c.Rule.Scope.Kind)
	}
	if c.UsageLimit != nil && *c.UsageLimit < 1 {
		return errors.Wrapf(ErrInvalidArgument, "usage limit %d must be at least 1", *c.UsageLimit)
	}
	if c.PerUserLimit != nil && *c.PerUserLimit < 1 {
		return errors.Wrapf(ErrInvalidArgument, "per-user limit %d must be at least 1", *c.PerUserLimit)
	}
	if err := c.Rule.Validate(); err != nil {
		return errors.Wrapf(err, "coupon %s", c.Code)
	}
	return nil
}

// Discount returns the discount the coupon grants on orderAmount.
func (c *Coupon) Discount(orderAmount decimal.Decimal) (decimal.Decimal, error) {
	return pricing.Apply(c.Rule, orderAmount)
}

// NormalizeCode trims and upper-cases a code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Usage is one immutable ledger row recording a redemption.
type Usage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
}

// RedeemRequest holds the input for recording a redemption. OrderID is the
// caller's idempotency key.
type RedeemRequest struct {
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
}

// Validate checks request shape.
func (r RedeemRequest) Validate() error {
	switch {
	case r.CouponID == "":
		return errors.Wrap(ErrInvalidArgument, "coupon id is required")
	case r.UserID == "":
		return errors.Wrap(ErrInvalidArgument, "user id is required")
	case r.OrderID == "":
		return errors.Wrap(ErrInvalidArgument, "order id is required")
	case r.DiscountAmount.IsNegative():
		return errors.Wrapf(ErrInvalidArgument, "discount amount %s is negative", r.DiscountAmount)
	}
	return pricing.CheckAmount("discount amount", r.DiscountAmount)
}

// ListFilter narrows admin listings.
type ListFilter struct {
	ActiveOnly bool
}

// Repository provides coupon lookup, admin persistence and usage counts.
type Repository interface {
	// GetByCode looks up a coupon by its normalized code regardless of
	// active state. Returns ErrNotFound when absent.
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context, filter ListFilter) ([]Coupon, error)
	// Create returns ErrCodeExists when the code is taken.
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// UsageCounts counts ledger rows for the coupon in total and for userID.
	UsageCounts(ctx context.Context, couponID, userID string) (total, perUser int, err error)
	ListUsages(ctx context.Context, couponID string) ([]Usage, error)
	// GetUsage returns the redemption recorded for (couponID, orderID) or
	// ErrNotFound.
	GetUsage(ctx context.Context, couponID, orderID string) (*Usage, error)
}

// Ledger records redemptions atomically.
//
// Redeem must, in one transaction, serialize against other redemptions of
// the same coupon, return the existing row when (CouponID, OrderID) was
// already redeemed, recount usage, re-run CheckLimits and insert the row.
// A failed limit is reported as *LimitRaceError.
type Ledger interface {
	Redeem(ctx context.Context, req RedeemRequest) (*Usage, error)
}
