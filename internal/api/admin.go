package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/sale"
)

func activeOnly(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("active")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(pricing.ErrInvalidArgument, "invalid active %q", raw)
	}
	return v, nil
}

func decodeSaleInput(r *http.Request) (sale.Input, error) {
	var in sale.Input
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "is_featured":
			in.IsFeatured, err = d.Bool()
		case "rule":
			in.Rule, err = decodeRule(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return in, err
}

func decodeCouponInput(r *http.Request) (coupon.Input, error) {
	var in coupon.Input
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			in.Code, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "usage_limit":
			in.UsageLimit, err = readOptInt(d)
		case "per_user_limit":
			in.PerUserLimit, err = readOptInt(d)
		case "rule":
			in.Rule, err = decodeRule(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return in, err
}

func writeSale(w http.ResponseWriter, status int, s *sale.Sale) {
	writeJSON(w, status, func(e *jx.Encoder) { encSale(e, *s) })
}

func writeCoupon(w http.ResponseWriter, status int, c *coupon.Coupon) {
	writeJSON(w, status, func(e *jx.Encoder) { encCoupon(e, *c) })
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	active, err := activeOnly(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	sales, err := h.Sales.List(r.Context(), sale.ListFilter{ActiveOnly: active})
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, s := range sales {
			encSale(e, s)
		}
		e.ArrEnd()
	})
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSaleInput(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	s, err := h.Sales.Create(r.Context(), in)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeSale(w, http.StatusCreated, s)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sales.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeSale(w, http.StatusOK, s)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSaleInput(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	s, err := h.Sales.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeSale(w, http.StatusOK, s)
}

func (h *Handler) deactivateSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sales.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeSale(w, http.StatusOK, s)
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	active, err := activeOnly(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	coupons, err := h.Coupons.List(r.Context(), coupon.ListFilter{ActiveOnly: active})
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range coupons {
			encCoupon(e, c)
		}
		e.ArrEnd()
	})
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCouponInput(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	c, err := h.Coupons.Create(r.Context(), in)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeCoupon(w, http.StatusCreated, c)
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Coupons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCouponInput(r)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	c, err := h.Coupons.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Coupons.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) listCouponUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := h.Coupons.ListUsages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, u := range usages {
			encUsage(e, u)
		}
		e.ArrEnd()
	})
}
