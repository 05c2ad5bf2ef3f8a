package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-promo/internal/domain/checkout"
)

func decodeItems(d *jx.Decoder) ([]checkout.Item, error) {
	var items []checkout.Item
	err := d.Arr(func(d *jx.Decoder) error {
		var item checkout.Item
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				item.ProductID, err = d.Str()
			case "quantity":
				item.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
		items = append(items, item)
		return err
	})
	return items, err
}

// decodeOrder reads a quote or order request. OrderID stays empty for
// quotes.
func decodeOrder(r *http.Request) (checkout.PlaceOrderRequest, error) {
	var req checkout.PlaceOrderRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			req.UserID, err = d.Str()
		case "order_id":
			req.OrderID, err = d.Str()
		case "coupon_code":
			req.CouponCode, err = d.Str()
		case "at":
			req.At, err = readTime(d)
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrder(r)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	q, err := h.Checkout.Quote(r.Context(), req.QuoteRequest)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encQuoteFields(e, q)
		e.ObjEnd()
	})
}

// placeOrder prices the cart and consumes its coupon once per order_id.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrder(r)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	res, err := h.Checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		writeErr(w, r, flowCoupon, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encStr(e, "order_id", req.OrderID)
		encQuoteFields(e, res.Quote)
		if res.Usage != nil {
			e.FieldStart("usage")
			encUsage(e, *res.Usage)
		}
		e.ObjEnd()
	})
}
