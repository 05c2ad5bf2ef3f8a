package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/sale"
)

const saleColumns = `id, name, description, is_featured, is_active, created_at, updated_at,
	scope_kind, scope_target,
	discount_kind, value, max_discount, min_order_amount, valid_from, valid_until`

const (
	listCandidateSalesSQL = `SELECT ` + saleColumns + ` FROM sales
		WHERE is_active AND valid_from <= $3 AND valid_until >= $3
		  AND (scope_kind = 'global'
		    OR (scope_kind = 'category' AND scope_target = $2)
		    OR (scope_kind = 'product' AND scope_target = $1))`

	getSaleByIDSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	listSalesSQL = `SELECT ` + saleColumns + ` FROM sales
		WHERE is_active OR NOT $1
		ORDER BY created_at DESC, id`

	insertSaleSQL = `INSERT INTO sales (id, name, description, is_featured, is_active, created_at, updated_at,
		scope_kind, scope_target,
		discount_kind, value, max_discount, min_order_amount, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateSaleSQL = `UPDATE sales SET name = $2, description = $3, is_featured = $4, is_active = $5,
		created_at = $6, updated_at = $7,
		scope_kind = $8, scope_target = $9,
		discount_kind = $10, value = $11, max_discount = $12, min_order_amount = $13,
		valid_from = $14, valid_until = $15
		WHERE id = $1`
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// ListCandidates pre-filters by active flag, window and scope in SQL.
func (r *SaleRepository) ListCandidates(ctx context.Context, productID, categoryID string, at time.Time) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, listCandidateSalesSQL, productID, categoryID, at)
	if err != nil {
		return nil, fmt.Errorf("listing candidate sales for product %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanSale)
}

func (r *SaleRepository) GetByID(ctx context.Context, id string) (*sale.Sale, error) {
	rows, err := r.pool.Query(ctx, getSaleByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}
	return &s, nil
}

func (r *SaleRepository) List(ctx context.Context, filter sale.ListFilter) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, listSalesSQL, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	return pgx.CollectRows(rows, scanSale)
}

func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	if _, err := r.pool.Exec(ctx, insertSaleSQL, saleArgs(s)...); err != nil {
		return fmt.Errorf("inserting sale %q: %w", s.ID, err)
	}
	return nil
}

func (r *SaleRepository) Update(ctx context.Context, s *sale.Sale) error {
	tag, err := r.pool.Exec(ctx, updateSaleSQL, saleArgs(s)...)
	if err != nil {
		return fmt.Errorf("updating sale %q: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return sale.ErrNotFound
	}
	return nil
}

func saleArgs(s *sale.Sale) []any {
	args := []any{
		s.ID, s.Name, s.Description, s.IsFeatured, s.IsActive, s.CreatedAt, s.UpdatedAt,
		string(s.Rule.Scope.Kind), s.Rule.Scope.TargetID,
	}
	return append(args, ruleArgs(s.Rule)...)
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s     sale.Sale
		scope struct{ kind, target string }
		rule  ruleColumns
	)
	dest := []any{
		&s.ID, &s.Name, &s.Description, &s.IsFeatured, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		&scope.kind, &scope.target,
	}
	if err := row.Scan(append(dest, rule.dest()...)...); err != nil {
		return s, err
	}
	s.Rule = rule.rule(pricing.Scope{Kind: pricing.ScopeKind(scope.kind), TargetID: scope.target})
	return s, nil
}
