package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encProduct(e, p)
		}
		e.ArrEnd()
	})
}

// productPrice returns the per-unit sale discount and final price of one
// product, optionally at the instant given by ?at=.
func (h *Handler) productPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := queryTime(r, "at")
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	if at.IsZero() {
		at = h.now()
	}
	p, err := h.Products.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	discount, err := h.Checkout.ComputeLineDiscount(ctx, p.ID, p.CategoryID, p.Price, at)
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encStr(e, "product_id", p.ID)
		encTime(e, "at", at)
		encMoney(e, "price", p.Price)
		encMoney(e, "discount", discount)
		encMoney(e, "final_price", p.Price.Sub(discount))
		e.ObjEnd()
	})
}

// productSales lists the live sales applying to a product, best first.
func (h *Handler) productSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := queryTime(r, "at")
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	if at.IsZero() {
		at = h.now()
	}
	p, err := h.Products.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, flowAdmin, err)
		return
	}
	sales, err := h.Resolver.ResolveForProduct(ctx, p.ID, p.CategoryID, at)
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
