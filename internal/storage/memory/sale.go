package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-promo/internal/domain/sale"
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository is an in-memory sale store.
type SaleRepository struct {
	mu    sync.RWMutex
	sales map[string]sale.Sale
}

func NewSaleRepository() *SaleRepository {
	return &SaleRepository{sales: make(map[string]sale.Sale)}
}

// ListCandidates returns active sales whose window contains at. Scope
// filtering is left to the resolver.
func (r *SaleRepository) ListCandidates(_ context.Context, _, _ string, at time.Time) ([]sale.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []sale.Sale
	for _, s := range r.sales {
		if s.IsActive && s.Rule.ActiveAt(at) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SaleRepository) GetByID(_ context.Context, id string) (*sale.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sales[id]
	if !ok {
		return nil, sale.ErrNotFound
	}
	return &s, nil
}

// List returns sales newest first.
func (r *SaleRepository) List(_ context.Context, filter sale.ListFilter) ([]sale.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sale.Sale, 0, len(r.sales))
	for _, s := range r.sales {
		if filter.ActiveOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b sale.Sale) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *SaleRepository) Create(_ context.Context, s *sale.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales[s.ID] = *s
	return nil
}

func (r *SaleRepository) Update(_ context.Context, s *sale.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sales[s.ID]; !ok {
		return sale.ErrNotFound
	}
	r.sales[s.ID] = *s
	return nil
}
