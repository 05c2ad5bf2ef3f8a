package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
)

func intp(v int) *int { return &v }

func newCoupon(id, code string, usageLimit, perUserLimit *int) *coupon.Coupon {
	return &coupon.Coupon{
		ID:   id,
		Code: code,
		Rule: pricing.PriceRule{
			Kind:  pricing.DiscountFlatAmount,
			Value: decimal.NewFromInt(10),
			Scope: pricing.GlobalScope(),
		},
		UsageLimit:   usageLimit,
		PerUserLimit: perUserLimit,
		IsActive:     true,
	}
}

func TestCouponRepository_ParallelRedeemSingleSlot(t *testing.T) {
	const n = 50
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, newCoupon("c1", "ONCE", intp(1), nil)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		races   int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Redeem(ctx, coupon.RedeemRequest{
				CouponID: "c1",
				UserID:   fmt.Sprintf("user-%d", i),
				OrderID:  fmt.Sprintf("order-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, coupon.ErrConcurrentLimitRace):
				assert.ErrorIs(t, err, coupon.ErrGlobalLimitReached)
				races++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, races)

	total, _, err := repo.UsageCounts(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCouponRepository_ParallelRedeemPerUser(t *testing.T) {
	const n = 20
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, newCoupon("c1", "TWICE", nil, intp(2))))

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Redeem(ctx, coupon.RedeemRequest{
				CouponID: "c1",
				UserID:   "alice",
				OrderID:  fmt.Sprintf("order-%d", i),
			})
		}()
	}
	wg.Wait()

	total, perUser, err := repo.UsageCounts(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, perUser)

	_, err = repo.Redeem(ctx, coupon.RedeemRequest{CouponID: "c1", UserID: "bob", OrderID: "bob-1"})
	require.NoError(t, err)
}

func TestCouponRepository_RedeemIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, newCoupon("c1", "ONCE", intp(1), nil)))

	req := coupon.RedeemRequest{CouponID: "c1", UserID: "alice", OrderID: "o1", DiscountAmount: decimal.NewFromInt(10)}

	var wg sync.WaitGroup
	results := make([]*coupon.Usage, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := repo.Redeem(ctx, req)
			assert.NoError(t, err)
			results[i] = u
		}()
	}
	wg.Wait()

	for _, u := range results {
		require.NotNil(t, u)
		assert.Equal(t, results[0].ID, u.ID)
	}
	usages, err := repo.ListUsages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, usages, 1)

	got, err := repo.GetUsage(ctx, "c1", "o1")
	require.NoError(t, err)
	assert.Equal(t, results[0].ID, got.ID)

	_, err = repo.Redeem(ctx, coupon.RedeemRequest{CouponID: "c1", UserID: "bob", OrderID: "o1"})
	require.ErrorIs(t, err, coupon.ErrInvalidArgument)
}

func TestCouponRepository_RedeemErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()

	_, err := repo.Redeem(ctx, coupon.RedeemRequest{CouponID: "missing", UserID: "u", OrderID: "o"})
	require.ErrorIs(t, err, coupon.ErrNotFound)

	require.NoError(t, repo.Create(ctx, newCoupon("c1", "X", nil, nil)))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.Redeem(cancelled, coupon.RedeemRequest{CouponID: "c1", UserID: "u", OrderID: "o"})
	require.ErrorIs(t, err, context.Canceled)

	usages, err := repo.ListUsages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, usages)
}

func TestCouponRepository_Codes(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()

	require.NoError(t, repo.Create(ctx, newCoupon("c1", "SPRING", nil, nil)))
	require.NoError(t, repo.Create(ctx, newCoupon("c2", "SUMMER", nil, nil)))
	require.ErrorIs(t, repo.Create(ctx, newCoupon("c3", "SPRING", nil, nil)), coupon.ErrCodeExists)

	got, err := repo.GetByCode(ctx, " spring ")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	renamed := newCoupon("c1", "SUMMER", nil, nil)
	require.ErrorIs(t, repo.Update(ctx, renamed), coupon.ErrCodeExists)

	renamed.Code = "AUTUMN"
	require.NoError(t, repo.Update(ctx, renamed))
	_, err = repo.GetByCode(ctx, "SPRING")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	got, err = repo.GetByCode(ctx, "AUTUMN")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	require.ErrorIs(t, repo.Update(ctx, newCoupon("c9", "WINTER", nil, nil)), coupon.ErrNotFound)

	list, err := repo.List(ctx, coupon.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AUTUMN", list[0].Code)
}

func TestCouponRepository_CreateBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, newCoupon("c1", "TAKEN", nil, nil)))

	n, err := repo.CreateBatch(ctx, []coupon.Coupon{
		*newCoupon("c2", "FRESH", nil, nil),
		*newCoupon("c3", "TAKEN", nil, nil),
		*newCoupon("c4", "FRESH", nil, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := repo.ExistingCodes(ctx, []string{"FRESH", "MISSING", "TAKEN"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FRESH", "TAKEN"}, found)

	var scanned []string
	require.NoError(t, repo.ScanCodes(ctx, func(code string) { scanned = append(scanned, code) }))
	assert.ElementsMatch(t, []string{"FRESH", "TAKEN"}, scanned)
}
