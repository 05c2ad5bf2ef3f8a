// Package product describes the read-only catalog collaborator.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the part of a catalog item that pricing needs.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	Price      decimal.Decimal
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products found; missing IDs are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
