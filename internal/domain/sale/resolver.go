package sale

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// Resolver picks the sales applicable to a product.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveForProduct returns every sale live for the product at now, most
// relevant first: product scope before category before global, featured
// before regular, newest first, then by ID.
func (r *Resolver) ResolveForProduct(ctx context.Context, productID, categoryID string, now time.Time) ([]Sale, error) {
	candidates, err := r.repo.ListCandidates(ctx, productID, categoryID, now)
	if err != nil {
		return nil, errors.Wrap(err, "list candidate sales")
	}

	live := candidates[:0:0]
	for i := range candidates {
		if candidates[i].Applies(productID, categoryID, now) {
			live = append(live, candidates[i])
		}
	}

	slices.SortFunc(live, compare)
	return live, nil
}

// Best returns the most relevant live sale, or nil when none applies.
func (r *Resolver) Best(ctx context.Context, productID, categoryID string, now time.Time) (*Sale, error) {
	sales, err := r.ResolveForProduct(ctx, productID, categoryID, now)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return &sales[0], nil
}

func compare(a, b Sale) int {
	if sa, sb := a.Rule.Scope.Specificity(), b.Rule.Scope.Specificity(); sa != sb {
		return sb - sa
	}
	if a.IsFeatured != b.IsFeatured {
		if a.IsFeatured {
			return -1
		}
		return 1
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}
