package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/pkg/httpmiddleware"
)

// validateCoupon checks a code against an order amount without consuming
// it. Calls are throttled per user_id.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code, userID string
		amount       decimal.Decimal
		hasAmount    bool
	)
	at := h.now()
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "user_id":
			userID, err = d.Str()
		case "order_amount":
			amount, err = readDecimal(d)
			hasAmount = true
		case "at":
			at, err = readTime(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err == nil && !hasAmount {
		err = errors.Wrap(coupon.ErrInvalidArgument, "order amount is required")
	}
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}

	if h.limiter != nil && userID != "" {
		now := h.now()
		d := h.limiter.Allow(userID, now)
		d.SetHeaders(w.Header(), now)
		if !d.Allowed {
			httpmiddleware.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many coupon attempts")
			return
		}
	}

	c, err := h.Coupons.ValidateAt(r.Context(), code, userID, amount, at)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	discount, err := c.Discount(amount)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encBool(e, "valid", true)
		encStr(e, "coupon_id", c.ID)
		encStr(e, "code", c.Code)
		encMoney(e, "order_amount", amount)
		encMoney(e, "discount", discount)
		encMoney(e, "total", amount.Sub(discount))
		e.ObjEnd()
	})
}

// redeemCoupon records a redemption directly, for callers that price orders
// themselves. Repeating an order_id returns the recorded usage.
func (h *Handler) redeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.RedeemRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "coupon_id":
			req.CouponID, err = d.Str()
		case "user_id":
			req.UserID, err = d.Str()
		case "order_id":
			req.OrderID, err = d.Str()
		case "discount_amount":
			req.DiscountAmount, err = readDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	u, err := h.Coupons.Redeem(r.Context(), req)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encUsage(e, *u)
	})
}
