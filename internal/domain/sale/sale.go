// Package sale models catalog sales and resolves which of them apply to a
// product at a point in time.
package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// ErrNotFound is returned when a requested sale does not exist.
var ErrNotFound = errors.New("sale not found")

// Sale is a time-boxed price reduction applied automatically to matching
// products.
type Sale struct {
	ID          string
	Name        string
	Description string
	Rule        pricing.PriceRule
	IsFeatured  bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the rule invariants plus the sale-specific requirement of
// a closed validity window.
func (s *Sale) Validate() error {
	if s.Name == "" {
		return errors.Wrap(pricing.ErrInvalidArgument, "sale name is required")
	}
	if s.Rule.ValidFrom == nil || s.Rule.ValidUntil == nil {
		return errors.Wrap(pricing.ErrInvalidArgument, "sale requires both valid_from and valid_until")
	}
	if err := s.Rule.Validate(); err != nil {
		return errors.Wrapf(err, "sale %q", s.Name)
	}
	return nil
}

// Applies reports whether the sale is live at now for the given product.
func (s *Sale) Applies(productID, categoryID string, now time.Time) bool {
	return s.IsActive && s.Rule.ActiveAt(now) && s.Rule.Scope.Matches(productID, categoryID)
}

// ListFilter narrows admin listings.
type ListFilter struct {
	ActiveOnly bool
}

// Repository defines persistence operations for sales.
type Repository interface {
	// ListCandidates returns sales that may apply to the product at the given
	// time. Implementations may over-return; callers re-filter.
	ListCandidates(ctx context.Context, productID, categoryID string, at time.Time) ([]Sale, error)
	GetByID(ctx context.Context, id string) (*Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, error)
	Create(ctx context.Context, s *Sale) error
	Update(ctx context.Context, s *Sale) error
}
