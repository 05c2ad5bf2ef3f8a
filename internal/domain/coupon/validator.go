package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon may be redeemed. The answer is advisory:
// only Ledger.Redeem is authoritative under concurrency.
type Validator struct {
	repo Repository
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Validate runs the eligibility checks in a fixed order and stops at the
// first failure: existence, active flag, validity window, global limit,
// per-user limit, minimum order amount.
func (v *Validator) Validate(ctx context.Context, code, userID string, orderAmount decimal.Decimal, now time.Time) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "coupon code is required")
	}
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "user id is required")
	}
	if orderAmount.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidArgument, "order amount %s is negative", orderAmount)
	}

	c, err := v.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive {
		return nil, ErrInactive
	}
	if c.Rule.ValidFrom != nil && now.Before(*c.Rule.ValidFrom) {
		return nil, ErrNotYetValid
	}
	if c.Rule.ValidUntil != nil && now.After(*c.Rule.ValidUntil) {
		return nil, ErrExpired
	}

	if c.UsageLimit != nil || c.PerUserLimit != nil {
		total, perUser, err := v.repo.UsageCounts(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if err := CheckLimits(c, total, perUser); err != nil {
			return nil, err
		}
	}

	if !c.Rule.MeetsMinOrder(orderAmount) {
		return nil, &MinOrderNotMetError{Required: *c.Rule.MinOrderAmount}
	}

	return c, nil
}
