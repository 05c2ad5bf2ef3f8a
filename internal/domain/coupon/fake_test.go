package coupon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-package Repository and Ledger for unit tests.
type fakeStore struct {
	mu       sync.Mutex
	coupons  map[string]*Coupon
	usages   []Usage
	countErr error
	counts   int
}

func newFakeStore(coupons ...*Coupon) *fakeStore {
	s := &fakeStore{coupons: make(map[string]*Coupon)}
	for _, c := range coupons {
		s.coupons[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetByCode(_ context.Context, code string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context, filter ListFilter) ([]Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Coupon
	for _, c := range s.coupons {
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.coupons {
		if existing.Code == c.Code {
			return ErrCodeExists
		}
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *fakeStore) Update(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[c.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.coupons {
		if existing.ID != c.ID && existing.Code == c.Code {
			return ErrCodeExists
		}
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *fakeStore) UsageCounts(_ context.Context, couponID, userID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	if s.countErr != nil {
		return 0, 0, s.countErr
	}
	return s.countLocked(couponID, userID)
}

func (s *fakeStore) countLocked(couponID, userID string) (total, perUser int, err error) {
	for _, u := range s.usages {
		if u.CouponID != couponID {
			continue
		}
		total++
		if u.UserID == userID {
			perUser++
		}
	}
	return total, perUser, nil
}

func (s *fakeStore) ListUsages(_ context.Context, couponID string) ([]Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Usage
	for _, u := range s.usages {
		if u.CouponID == couponID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUsage(_ context.Context, couponID, orderID string) (*Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.usages {
		if u.CouponID == couponID && u.OrderID == orderID {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) Redeem(_ context.Context, req RedeemRequest) (*Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[req.CouponID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, u := range s.usages {
		if u.CouponID == req.CouponID && u.OrderID == req.OrderID {
			if u.UserID != req.UserID {
				return nil, errors.Wrap(ErrInvalidArgument, "order redeemed by another user")
			}
			cp := u
			return &cp, nil
		}
	}
	total, perUser, _ := s.countLocked(req.CouponID, req.UserID)
	if err := CheckLimits(c, total, perUser); err != nil {
		return nil, &LimitRaceError{Limit: err}
	}
	u := Usage{
		ID:             fmt.Sprintf("u%d", len(s.usages)+1),
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		CreatedAt:      time.Now(),
	}
	s.usages = append(s.usages, u)
	return &u, nil
}

func (s *fakeStore) addUsage(couponID, userID, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages = append(s.usages, Usage{
		ID:             fmt.Sprintf("u%d", len(s.usages)+1),
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: decimal.Zero,
	})
}
