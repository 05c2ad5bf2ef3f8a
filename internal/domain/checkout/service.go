package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
)

// maxParallelLines bounds concurrent sale lookups for one cart.
const maxParallelLines = 8

// QuoteRequest holds the input for pricing a cart.
type QuoteRequest struct {
	UserID     string
	Items      []Item
	CouponCode string
	// At is the pricing instant. Zero means now.
	At time.Time
}

// PlaceOrderRequest prices a cart and consumes its coupon under OrderID.
type PlaceOrderRequest struct {
	QuoteRequest
	OrderID string
}

// PlaceOrderResult holds the priced order and the ledger row, if any.
type PlaceOrderResult struct {
	Quote *Quote
	Usage *coupon.Usage
}

// Service prices carts using sales and coupons.
type Service struct {
	products product.Repository
	sales    SaleResolver
	coupons  Coupons
	policy   Stacking
	now      func() time.Time
	tracer   trace.Tracer
}

// NewService creates a checkout Service with the required domain dependencies.
func NewService(
	products product.Repository,
	sales SaleResolver,
	coupons Coupons,
	policy Stacking,
	tp trace.TracerProvider,
) *Service {
	return &Service{
		products: products,
		sales:    sales,
		coupons:  coupons,
		policy:   policy,
		now:      time.Now,
		tracer:   tp.Tracer("kart-promo/checkout"),
	}
}

// Policy returns the configured stacking policy.
func (s *Service) Policy() Stacking { return s.policy }

// ComputeLineDiscount returns the per-unit discount the best live sale grants
// on price, or zero when no sale applies. Without an order the unit price
// stands in for the subtotal when checking the sale's minimum order amount.
func (s *Service) ComputeLineDiscount(ctx context.Context, productID, categoryID string, price decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	best, amount, err := s.lineDiscount(ctx, productID, categoryID, price, now)
	if err != nil || best == nil {
		return amount, err
	}
	if !best.Rule.MeetsMinOrder(price) {
		return decimal.Zero, nil
	}
	return amount, nil
}

// ValidateCoupon checks whether code may be used by userID on an order of
// orderAmount.
func (s *Service) ValidateCoupon(ctx context.Context, code, userID string, orderAmount decimal.Decimal, now time.Time) (*coupon.Coupon, error) {
	return s.coupons.ValidateAt(ctx, code, userID, orderAmount, now)
}

// RedeemCoupon records a redemption for orderID.
func (s *Service) RedeemCoupon(ctx context.Context, couponID, userID, orderID string, discountAmount decimal.Decimal) (*coupon.Usage, error) {
	return s.coupons.Redeem(ctx, coupon.RedeemRequest{
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discountAmount,
	})
}

// Quote prices the cart: products are fetched in one batch, each line gets
// its best sale, then the coupon is applied per the stacking policy.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("coupon.code", coupon.NormalizeCode(req.CouponCode)),
		attribute.Int("cart.lines", len(req.Items)),
	))
	defer span.End()

	q, err := s.quote(ctx, req, s.validateCoupon(req))
	if err != nil {
		if !coupon.IsRejection(err) && !errors.Is(err, pricing.ErrInvalidArgument) && !errors.Is(err, product.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return q, nil
}

// PlaceOrder prices the cart and, when the coupon is applied, redeems it
// once under OrderID. Calling it again with the same OrderID returns the
// original redemption instead of consuming the coupon twice.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.OrderID == "" {
		return nil, ErrMissingOrderID
	}

	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("user.id", req.UserID),
		attribute.String("coupon.code", coupon.NormalizeCode(req.CouponCode)),
	))
	defer span.End()

	q, err := s.quote(ctx, req.QuoteRequest, s.validateCoupon(req.QuoteRequest))
	if err != nil {
		if errors.Is(err, coupon.ErrGlobalLimitReached) || errors.Is(err, coupon.ErrUserLimitReached) {
			return s.replay(ctx, req, err)
		}
		return nil, err
	}
	if !q.CouponApplied {
		return &PlaceOrderResult{Quote: q}, nil
	}

	u, err := s.RedeemCoupon(ctx, q.Coupon.ID, req.UserID, req.OrderID, q.CouponDiscount)
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order priced with coupon",
		zap.String("order.id", req.OrderID),
		zap.String("coupon.code", q.Coupon.Code),
		zap.String("discount", q.Discount().StringFixed(2)),
		zap.String("total", q.Total.StringFixed(2)),
	)
	return &PlaceOrderResult{Quote: q, Usage: u}, nil
}

// replay handles a retried order whose coupon limit was consumed by its own
// earlier attempt. The original usage is returned when it exists, otherwise
// limitErr is.
func (s *Service) replay(ctx context.Context, req PlaceOrderRequest, limitErr error) (*PlaceOrderResult, error) {
	c, err := s.coupons.GetByCode(ctx, req.CouponCode)
	if err != nil {
		return nil, limitErr
	}
	u, err := s.coupons.Redemption(ctx, c.ID, req.OrderID)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, limitErr
		}
		return nil, errors.Wrap(err, "lookup redemption")
	}
	if u.UserID != req.UserID {
		return nil, errors.Wrap(pricing.ErrInvalidArgument, "order redeemed by another user")
	}

	q, err := s.quote(ctx, req.QuoteRequest, func(context.Context, decimal.Decimal, time.Time) (*coupon.Coupon, error) {
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order replayed with recorded redemption",
		zap.String("order.id", req.OrderID),
		zap.String("usage.id", u.ID),
	)
	return &PlaceOrderResult{Quote: q, Usage: u}, nil
}

type couponFunc func(ctx context.Context, amount decimal.Decimal, now time.Time) (*coupon.Coupon, error)

func (s *Service) validateCoupon(req QuoteRequest) couponFunc {
	return func(ctx context.Context, amount decimal.Decimal, now time.Time) (*coupon.Coupon, error) {
		if req.UserID == "" {
			return nil, ErrMissingUserID
		}
		return s.coupons.ValidateAt(ctx, req.CouponCode, req.UserID, amount, now)
	}
}

func (s *Service) quote(ctx context.Context, req QuoteRequest, getCoupon couponFunc) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	now := req.At
	if now.IsZero() {
		now = s.now()
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	lines := make([]Line, len(req.Items))
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		lines[i] = Line{Product: p, Quantity: item.Quantity}
	}

	// Resolve sales per line concurrently; each goroutine owns its line.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLines)
	for i := range lines {
		l := &lines[i]
		g.Go(func() error {
			sl, unit, err := s.lineDiscount(gctx, l.Product.ID, l.Product.CategoryID, l.Product.Price, now)
			if err != nil {
				return errors.Wrapf(err, "resolve sale for product %s", l.Product.ID)
			}
			qty := decimal.NewFromInt(int64(l.Quantity))
			l.Sale = sl
			l.UnitDiscount = unit
			l.Subtotal = l.Product.Price.Mul(qty)
			l.Discount = unit.Mul(qty)
			l.Total = l.Subtotal.Sub(l.Discount)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	q := &Quote{
		Lines:          lines,
		Subtotal:       decimal.Zero,
		SaleDiscount:   decimal.Zero,
		CouponDiscount: decimal.Zero,
		Policy:         s.policy,
		At:             now,
	}
	for _, l := range lines {
		q.Subtotal = q.Subtotal.Add(l.Subtotal)
	}
	// Sale minimums are checked against the pre-sale order subtotal.
	for i := range lines {
		l := &lines[i]
		if l.Sale != nil && !l.Sale.Rule.MeetsMinOrder(q.Subtotal) {
			l.Sale = nil
			l.UnitDiscount = decimal.Zero
			l.Discount = decimal.Zero
			l.Total = l.Subtotal
		}
		q.SaleDiscount = q.SaleDiscount.Add(l.Discount)
	}

	if req.CouponCode != "" {
		if err := s.applyCoupon(ctx, q, getCoupon); err != nil {
			return nil, err
		}
	}

	q.Total = q.Subtotal.Sub(q.SaleDiscount).Sub(q.CouponDiscount)
	return q, nil
}

func (s *Service) applyCoupon(ctx context.Context, q *Quote, getCoupon couponFunc) error {
	base := q.Subtotal.Sub(q.SaleDiscount)
	if s.policy == StackingExclusive {
		base = q.Subtotal
	}

	c, err := getCoupon(ctx, base, q.At)
	if err != nil {
		return err
	}
	amount, err := c.Discount(base)
	if err != nil {
		return errors.Wrap(err, "compute coupon discount")
	}
	q.Coupon = c

	if s.policy == StackingExclusive {
		if !amount.GreaterThan(q.SaleDiscount) {
			return nil
		}
		for i := range q.Lines {
			l := &q.Lines[i]
			l.Sale = nil
			l.UnitDiscount = decimal.Zero
			l.Discount = decimal.Zero
			l.Total = l.Subtotal
		}
		q.SaleDiscount = decimal.Zero
	}

	q.CouponApplied = true
	q.CouponDiscount = amount
	return nil
}

func (s *Service) lineDiscount(ctx context.Context, productID, categoryID string, price decimal.Decimal, now time.Time) (*sale.Sale, decimal.Decimal, error) {
	if price.IsNegative() {
		return nil, decimal.Zero, errors.Wrapf(pricing.ErrInvalidArgument, "price %s is negative", price)
	}
	best, err := s.sales.Best(ctx, productID, categoryID, now)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if best == nil {
		return nil, decimal.Zero, nil
	}
	amount, err := pricing.Apply(best.Rule, price)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return best, amount, nil
}
