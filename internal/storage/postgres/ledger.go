package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-promo/internal/domain/coupon"
)

const (
	// The row lock serializes redemptions of one coupon; redemptions of
	// different coupons do not contend.
	lockCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`

	insertUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (coupon_id, order_id) DO NOTHING
		RETURNING ` + usageColumns
)

// Redeem records a redemption in a single READ COMMITTED transaction: lock
// the coupon row, return an existing row for the same order, recount usage,
// recheck limits and insert. Nothing is written when any step fails.
func (r *CouponRepository) Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Usage, error) {
	var usage *coupon.Usage
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockCouponSQL, req.CouponID)
		if err != nil {
			return fmt.Errorf("locking coupon %q: %w", req.CouponID, err)
		}
		c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrNotFound
			}
			return fmt.Errorf("locking coupon %q: %w", req.CouponID, err)
		}

		existing, err := findUsage(ctx, tx, req.CouponID, req.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.UserID != req.UserID {
				return errors.Wrapf(coupon.ErrInvalidArgument, "order %s already redeemed by another user", req.OrderID)
			}
			usage = existing
			return nil
		}

		total, perUser, err := countUsages(ctx, tx, req.CouponID, req.UserID)
		if err != nil {
			return err
		}
		if err := coupon.CheckLimits(&c, total, perUser); err != nil {
			return &coupon.LimitRaceError{Limit: err}
		}

		rows, err = tx.Query(ctx, insertUsageSQL,
			uuid.NewString(), req.CouponID, req.UserID, req.OrderID, req.DiscountAmount,
		)
		if err != nil {
			return fmt.Errorf("inserting usage: %w", err)
		}
		inserted, err := pgx.CollectRows(rows, scanUsage)
		if err != nil {
			return fmt.Errorf("inserting usage: %w", err)
		}
		if len(inserted) == 1 {
			usage = &inserted[0]
			return nil
		}

		// Lost the insert to a concurrent retry of the same order.
		usage, err = findUsage(ctx, tx, req.CouponID, req.OrderID)
		if err != nil {
			return err
		}
		if usage == nil {
			return fmt.Errorf("usage for order %q vanished after conflict", req.OrderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}
