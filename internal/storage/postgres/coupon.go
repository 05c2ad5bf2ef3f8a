package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
)

const couponCodeKey = "coupons_code_key"

const couponColumns = `id, code, description, usage_limit, per_user_limit, is_active, created_at, updated_at,
	discount_kind, value, max_discount, min_order_amount, valid_from, valid_until`

const usageColumns = `id, coupon_id, user_id, order_id, discount_amount, created_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE is_active OR NOT $1
		ORDER BY code`

	insertCouponSQL = `INSERT INTO coupons (id, code, description, usage_limit, per_user_limit, is_active,
		created_at, updated_at,
		discount_kind, value, max_discount, min_order_amount, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	insertCouponIgnoreSQL = insertCouponSQL + ` ON CONFLICT (code) DO NOTHING`

	updateCouponSQL = `UPDATE coupons SET code = $2, description = $3, usage_limit = $4, per_user_limit = $5,
		is_active = $6, created_at = $7, updated_at = $8,
		discount_kind = $9, value = $10, max_discount = $11, min_order_amount = $12,
		valid_from = $13, valid_until = $14
		WHERE id = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`

	existingCouponCodesSQL = `SELECT code FROM coupons WHERE code = ANY($1)`

	countUsagesSQL = `SELECT count(*), count(*) FILTER (WHERE user_id = $2)
		FROM coupon_usages WHERE coupon_id = $1`

	listUsagesSQL = `SELECT ` + usageColumns + ` FROM coupon_usages
		WHERE coupon_id = $1
		ORDER BY created_at, id`

	getUsageSQL = `SELECT ` + usageColumns + ` FROM coupon_usages
		WHERE coupon_id = $1 AND order_id = $2`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Ledger     = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.Ledger backed by
// PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no coupon has that code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) getOne(ctx context.Context, query, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", arg, err)
	}
	return &c, nil
}

func (r *CouponRepository) List(ctx context.Context, filter coupon.ListFilter) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a coupon. A taken code yields coupon.ErrCodeExists.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, insertCouponSQL, couponArgs(c)...); err != nil {
		if isUniqueViolation(err, couponCodeKey) {
			return coupon.ErrCodeExists
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err, couponCodeKey) {
			return coupon.ErrCodeExists
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// CreateBatch inserts coupons in one round trip, skipping codes that
// already exist. It returns the number of rows inserted.
func (r *CouponRepository) CreateBatch(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(insertCouponIgnoreSQL, couponArgs(&coupons[i])...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	var inserted int
	for i := range coupons {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting coupon %q: %w", coupons[i].Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ScanCodes calls fn for every stored coupon code.
func (r *CouponRepository) ScanCodes(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning coupon codes: %w", err)
	}
	return nil
}

// ExistingCodes returns the subset of codes that are already stored.
func (r *CouponRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, existingCouponCodesSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("looking up coupon codes: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting coupon codes: %w", err)
	}
	return found, nil
}

// UsageCounts counts ledger rows for the coupon in total and for userID.
func (r *CouponRepository) UsageCounts(ctx context.Context, couponID, userID string) (total, perUser int, err error) {
	return countUsages(ctx, r.pool, couponID, userID)
}

func (r *CouponRepository) ListUsages(ctx context.Context, couponID string) ([]coupon.Usage, error) {
	rows, err := r.pool.Query(ctx, listUsagesSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("listing usages of coupon %q: %w", couponID, err)
	}
	return pgx.CollectRows(rows, scanUsage)
}

func (r *CouponRepository) GetUsage(ctx context.Context, couponID, orderID string) (*coupon.Usage, error) {
	u, err := findUsage(ctx, r.pool, couponID, orderID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, coupon.ErrNotFound
	}
	return u, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countUsages(ctx context.Context, q querier, couponID, userID string) (total, perUser int, err error) {
	if err := q.QueryRow(ctx, countUsagesSQL, couponID, userID).Scan(&total, &perUser); err != nil {
		return 0, 0, fmt.Errorf("counting usages of coupon %q: %w", couponID, err)
	}
	return total, perUser, nil
}

// findUsage returns nil without error when no row exists.
func findUsage(ctx context.Context, q querier, couponID, orderID string) (*coupon.Usage, error) {
	rows, err := q.Query(ctx, getUsageSQL, couponID, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting usage of coupon %q for order %q: %w", couponID, orderID, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUsage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting usage of coupon %q for order %q: %w", couponID, orderID, err)
	}
	return &u, nil
}

func couponArgs(c *coupon.Coupon) []any {
	args := []any{c.ID, c.Code, c.Description, c.UsageLimit, c.PerUserLimit, c.IsActive, c.CreatedAt, c.UpdatedAt}
	return append(args, ruleArgs(c.Rule)...)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c    coupon.Coupon
		rule ruleColumns
	)
	dest := []any{&c.ID, &c.Code, &c.Description, &c.UsageLimit, &c.PerUserLimit, &c.IsActive, &c.CreatedAt, &c.UpdatedAt}
	if err := row.Scan(append(dest, rule.dest()...)...); err != nil {
		return c, err
	}
	c.Rule = rule.rule(pricing.GlobalScope())
	return c, nil
}

func scanUsage(row pgx.CollectableRow) (coupon.Usage, error) {
	var u coupon.Usage
	err := row.Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.CreatedAt)
	return u, err
}
