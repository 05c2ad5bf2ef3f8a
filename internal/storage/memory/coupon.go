package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-promo/internal/domain/coupon"
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Ledger     = (*CouponRepository)(nil)
)

// CouponRepository is an in-memory coupon store and usage ledger. Redeem
// holds the write lock across the whole read-check-insert sequence, which
// gives it the same atomicity as the transactional ledger.
type CouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]coupon.Coupon
	byCode  map[string]string
	usages  []coupon.Usage
	now     func() time.Time
}

func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		coupons: make(map[string]coupon.Coupon),
		byCode:  make(map[string]string),
		now:     time.Now,
	}
}

func (r *CouponRepository) GetByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c := r.coupons[id]
	return &c, nil
}

func (r *CouponRepository) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

// List returns coupons ordered by code.
func (r *CouponRepository) List(_ context.Context, filter coupon.ListFilter) ([]coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (r *CouponRepository) Create(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCode[c.Code]; taken {
		return coupon.ErrCodeExists
	}
	r.coupons[c.ID] = *c
	r.byCode[c.Code] = c.ID
	return nil
}

// CreateBatch stores coupons whose codes are free and skips the rest.
func (r *CouponRepository) CreateBatch(_ context.Context, coupons []coupon.Coupon) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inserted int
	for _, c := range coupons {
		if _, taken := r.byCode[c.Code]; taken {
			continue
		}
		r.coupons[c.ID] = c
		r.byCode[c.Code] = c.ID
		inserted++
	}
	return inserted, nil
}

func (r *CouponRepository) ScanCodes(_ context.Context, fn func(code string)) error {
	r.mu.RLock()
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	for _, code := range codes {
		fn(code)
	}
	return nil
}

func (r *CouponRepository) ExistingCodes(_ context.Context, codes []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []string
	for _, code := range codes {
		if _, ok := r.byCode[code]; ok {
			found = append(found, code)
		}
	}
	return found, nil
}

func (r *CouponRepository) Update(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.coupons[c.ID]
	if !ok {
		return coupon.ErrNotFound
	}
	if owner, taken := r.byCode[c.Code]; taken && owner != c.ID {
		return coupon.ErrCodeExists
	}
	delete(r.byCode, old.Code)
	r.coupons[c.ID] = *c
	r.byCode[c.Code] = c.ID
	return nil
}

func (r *CouponRepository) UsageCounts(_ context.Context, couponID, userID string) (total, perUser int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total, perUser = r.countLocked(couponID, userID)
	return total, perUser, nil
}

func (r *CouponRepository) countLocked(couponID, userID string) (total, perUser int) {
	for _, u := range r.usages {
		if u.CouponID != couponID {
			continue
		}
		total++
		if u.UserID == userID {
			perUser++
		}
	}
	return total, perUser
}

// ListUsages returns the ledger of a coupon in insertion order.
func (r *CouponRepository) ListUsages(_ context.Context, couponID string) ([]coupon.Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []coupon.Usage
	for _, u := range r.usages {
		if u.CouponID == couponID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *CouponRepository) GetUsage(_ context.Context, couponID, orderID string) (*coupon.Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.findUsageLocked(couponID, orderID); ok {
		return &u, nil
	}
	return nil, coupon.ErrNotFound
}

func (r *CouponRepository) findUsageLocked(couponID, orderID string) (coupon.Usage, bool) {
	for _, u := range r.usages {
		if u.CouponID == couponID && u.OrderID == orderID {
			return u, true
		}
	}
	return coupon.Usage{}, false
}

// Redeem records a redemption. See coupon.Ledger for the contract.
func (r *CouponRepository) Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, ok := r.coupons[req.CouponID]
	if !ok {
		return nil, coupon.ErrNotFound
	}

	if u, ok := r.findUsageLocked(req.CouponID, req.OrderID); ok {
		if u.UserID != req.UserID {
			return nil, errors.Wrapf(coupon.ErrInvalidArgument, "order %s already redeemed by another user", req.OrderID)
		}
		return &u, nil
	}

	total, perUser := r.countLocked(req.CouponID, req.UserID)
	if err := coupon.CheckLimits(&c, total, perUser); err != nil {
		return nil, &coupon.LimitRaceError{Limit: err}
	}

	u := coupon.Usage{
		ID:             uuid.NewString(),
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		CreatedAt:      r.now().UTC(),
	}
	r.usages = append(r.usages, u)
	return &u, nil
}
