package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// Input holds the admin-editable fields of a sale.
type Input struct {
	Name        string
	Description string
	Rule        pricing.PriceRule
	IsFeatured  bool
}

// Service implements admin CRUD for sales.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a sale Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and stores a new, active sale.
func (s *Service) Create(ctx context.Context, in Input) (*Sale, error) {
	now := s.now().UTC()
	sl := &Sale{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Rule:        in.Rule,
		IsFeatured:  in.IsFeatured,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := sl.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "create sale")
	}

	zctx.From(ctx).Info("Sale created",
		zap.String("sale.id", sl.ID),
		zap.String("sale.name", sl.Name),
		zap.String("sale.scope", string(sl.Rule.Scope.Kind)),
	)
	return sl, nil
}

// Update replaces the editable fields of an existing sale. The active flag
// is left untouched.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Sale, error) {
	sl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sl.Name = in.Name
	sl.Description = in.Description
	sl.Rule = in.Rule
	sl.IsFeatured = in.IsFeatured
	sl.UpdatedAt = s.now().UTC()
	if err := sl.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "update sale")
	}
	return sl, nil
}

// Deactivate soft-deletes a sale. Deactivating twice is a no-op.
func (s *Service) Deactivate(ctx context.Context, id string) (*Sale, error) {
	sl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sl.IsActive {
		return sl, nil
	}

	sl.IsActive = false
	sl.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "deactivate sale")
	}

	zctx.From(ctx).Info("Sale deactivated", zap.String("sale.id", sl.ID))
	return sl, nil
}

// Get returns a sale by ID.
func (s *Service) Get(ctx context.Context, id string) (*Sale, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns sales matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, error) {
	return s.repo.List(ctx, filter)
}
