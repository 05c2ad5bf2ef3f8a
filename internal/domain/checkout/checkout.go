// Package checkout is the facade the order flow calls to price a cart and
// consume a coupon.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
)

// Sentinel errors for cart validation.
var (
	ErrEmptyItems     = errors.Wrap(pricing.ErrInvalidArgument, "items required")
	ErrMissingOrderID = errors.Wrap(pricing.ErrInvalidArgument, "order id required")
	ErrMissingUserID  = errors.Wrap(pricing.ErrInvalidArgument, "user id required to apply a coupon")
)

// ProductNotFoundError indicates a requested product does not exist. It
// matches product.ErrNotFound.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == product.ErrNotFound
}

// InvalidQuantityError indicates a line item has a non-positive quantity. It
// matches pricing.ErrInvalidArgument.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool {
	return target == pricing.ErrInvalidArgument
}

// SaleResolver picks the sale applied to a product.
type SaleResolver interface {
	Best(ctx context.Context, productID, categoryID string, now time.Time) (*sale.Sale, error)
}

// Coupons validates and redeems coupons.
type Coupons interface {
	ValidateAt(ctx context.Context, code, userID string, orderAmount decimal.Decimal, now time.Time) (*coupon.Coupon, error)
	Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Usage, error)
	GetByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	Redemption(ctx context.Context, couponID, orderID string) (*coupon.Usage, error)
}

// Item is one cart line as submitted by the caller.
type Item struct {
	ProductID string
	Quantity  int
}

// Line is a priced cart line.
type Line struct {
	Product  product.Product
	Quantity int
	// Sale is the sale applied to the line, nil when none applies or the
	// exclusive policy picked the coupon instead.
	Sale         *sale.Sale
	UnitDiscount decimal.Decimal
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// Quote is a fully priced cart.
type Quote struct {
	Lines        []Line
	Subtotal     decimal.Decimal
	SaleDiscount decimal.Decimal
	// Coupon is the validated coupon, nil when no code was given.
	Coupon *coupon.Coupon
	// CouponApplied is false when the exclusive policy preferred the sales.
	CouponApplied  bool
	CouponDiscount decimal.Decimal
	Total          decimal.Decimal
	Policy         Stacking
	At             time.Time
}

// Discount returns the total discount of the quote.
func (q *Quote) Discount() decimal.Decimal {
	return q.SaleDiscount.Add(q.CouponDiscount)
}
