// Package api exposes the promotion engine over HTTP: storefront pricing,
// checkout, coupon validation and redemption, and admin CRUD.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/auth"
	"github.com/xenking/kart-promo/internal/domain/checkout"
	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
	"github.com/xenking/kart-promo/pkg/httpmiddleware"
)

// Checkout prices carts and places orders.
type Checkout interface {
	ComputeLineDiscount(ctx context.Context, productID, categoryID string, price decimal.Decimal, now time.Time) (decimal.Decimal, error)
	Quote(ctx context.Context, req checkout.QuoteRequest) (*checkout.Quote, error)
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (*checkout.PlaceOrderResult, error)
}

// Sales is the sale admin surface plus the resolver.
type Sales interface {
	Create(ctx context.Context, in sale.Input) (*sale.Sale, error)
	Update(ctx context.Context, id string, in sale.Input) (*sale.Sale, error)
	Deactivate(ctx context.Context, id string) (*sale.Sale, error)
	Get(ctx context.Context, id string) (*sale.Sale, error)
	List(ctx context.Context, filter sale.ListFilter) ([]sale.Sale, error)
}

// SaleResolver lists the sales applying to a product, best first.
type SaleResolver interface {
	ResolveForProduct(ctx context.Context, productID, categoryID string, now time.Time) ([]sale.Sale, error)
}

// Coupons is the coupon service surface used over HTTP.
type Coupons interface {
	ValidateAt(ctx context.Context, code, userID string, orderAmount decimal.Decimal, now time.Time) (*coupon.Coupon, error)
	Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Usage, error)
	Create(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
	Update(ctx context.Context, id string, in coupon.Input) (*coupon.Coupon, error)
	Deactivate(ctx context.Context, id string) (*coupon.Coupon, error)
	Get(ctx context.Context, id string) (*coupon.Coupon, error)
	List(ctx context.Context, filter coupon.ListFilter) ([]coupon.Coupon, error)
	ListUsages(ctx context.Context, couponID string) ([]coupon.Usage, error)
}

// Config holds non-dependency settings of the Handler.
type Config struct {
	// APIKeyPepper keys the HMAC used to hash API keys.
	APIKeyPepper []byte
	// CouponLimiter throttles coupon validation per user. Nil disables it.
	CouponLimiter *httpmiddleware.Limiter
}

// Deps are the domain collaborators of the Handler.
type Deps struct {
	Products product.Repository
	Sales    Sales
	Resolver SaleResolver
	Coupons  Coupons
	Checkout Checkout
	APIKeys  auth.Repository
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	pepper  []byte
	limiter *httpmiddleware.Limiter
	now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		Deps:    deps,
		pepper:  cfg.APIKeyPepper,
		limiter: cfg.CouponLimiter,
		now:     time.Now,
	}
}

// Routes returns the /api/v1 router. Every route requires an API key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Group(func(r chi.Router) {
			r.Use(requireScope(auth.ScopeCheckout))

			r.Get("/products", h.listProducts)
			r.Get("/products/{id}/price", h.productPrice)
			r.Get("/products/{id}/sales", h.productSales)

			r.Post("/checkout/quote", h.quote)
			r.Post("/checkout/orders", h.placeOrder)

			r.Post("/coupons/validate", h.validateCoupon)
			r.Post("/coupons/redeem", h.redeemCoupon)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireScope(auth.ScopeAdmin))

			r.Get("/sales", h.listSales)
			r.Post("/sales", h.createSale)
			r.Get("/sales/{id}", h.getSale)
			r.Put("/sales/{id}", h.updateSale)
			r.Post("/sales/{id}/deactivate", h.deactivateSale)

			r.Get("/coupons", h.listCoupons)
			r.Post("/coupons", h.createCoupon)
			r.Get("/coupons/{id}", h.getCoupon)
			r.Put("/coupons/{id}", h.updateCoupon)
			r.Post("/coupons/{id}/deactivate", h.deactivateCoupon)
			r.Get("/coupons/{id}/usages", h.listCouponUsages)
		})
	})
	return r
}
