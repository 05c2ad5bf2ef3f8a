package checkout_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-promo/internal/domain/checkout"
	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
	"github.com/xenking/kart-promo/internal/storage/memory"
)

func TestCheckoutFlow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	from, until := now.Add(-time.Hour), now.Add(time.Hour)

	products := memory.NewProductRepository(
		product.Product{ID: "kurta", Name: "Kurta", CategoryID: "ethnic", Price: decimal.NewFromInt(2000)},
		product.Product{ID: "scarf", Name: "Scarf", CategoryID: "accessories", Price: decimal.NewFromInt(500)},
	)
	sales := memory.NewSaleRepository()
	couponRepo := memory.NewCouponRepository()

	saleSvc := sale.NewService(sales)
	_, err := saleSvc.Create(ctx, sale.Input{
		Name: "Ethnic week",
		Rule: pricing.PriceRule{
			Kind:        pricing.DiscountPercentage,
			Value:       decimal.NewFromInt(20),
			MaxDiscount: &[]decimal.Decimal{decimal.NewFromInt(300)}[0],
			ValidFrom:   &from,
			ValidUntil:  &until,
			Scope:       pricing.CategoryScope("ethnic"),
		},
	})
	require.NoError(t, err)

	couponSvc, err := coupon.NewService(couponRepo, couponRepo, coupon.ServiceConfig{
		MeterProvider:  metricnoop.NewMeterProvider(),
		TracerProvider: tracenoop.NewTracerProvider(),
	})
	require.NoError(t, err)
	limit := 1
	_, err = couponSvc.Create(ctx, coupon.Input{
		Code: "save200",
		Rule: pricing.PriceRule{
			Kind:           pricing.DiscountFlatAmount,
			Value:          decimal.NewFromInt(200),
			MinOrderAmount: &[]decimal.Decimal{decimal.NewFromInt(1000)}[0],
			Scope:          pricing.GlobalScope(),
		},
		UsageLimit: &limit,
	})
	require.NoError(t, err)

	svc := checkout.NewService(products, sale.NewResolver(sales), couponSvc, checkout.StackingStack, tracenoop.NewTracerProvider())

	req := checkout.QuoteRequest{
		UserID:     "alice",
		Items:      []checkout.Item{{ProductID: "kurta", Quantity: 1}, {ProductID: "scarf", Quantity: 1}},
		CouponCode: "SAVE200",
	}

	// 2500 list, 300 off the kurta, 200 coupon on the remaining 2200.
	q, err := svc.Quote(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(q.Subtotal))
	assert.True(t, decimal.NewFromInt(300).Equal(q.SaleDiscount))
	assert.True(t, decimal.NewFromInt(200).Equal(q.CouponDiscount))
	assert.True(t, decimal.NewFromInt(2000).Equal(q.Total))

	// Several checkouts race for the last slot; exactly one order wins.
	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%d", i)
			_, err := svc.PlaceOrder(ctx, checkout.PlaceOrderRequest{QuoteRequest: req, OrderID: orderID})
			if err != nil {
				assert.Contains(t, []coupon.Kind{coupon.KindGlobalLimitReached, coupon.KindConcurrentLimitRace}, coupon.KindOf(err))
				return
			}
			mu.Lock()
			wins = append(wins, orderID)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, wins, 1)

	// The winner can retry safely.
	res, err := svc.PlaceOrder(ctx, checkout.PlaceOrderRequest{QuoteRequest: req, OrderID: wins[0]})
	require.NoError(t, err)
	require.NotNil(t, res.Usage)
	assert.Equal(t, wins[0], res.Usage.OrderID)

	c, err := couponSvc.GetByCode(ctx, "SAVE200")
	require.NoError(t, err)
	usages, err := couponSvc.ListUsages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, usages, 1)
}
