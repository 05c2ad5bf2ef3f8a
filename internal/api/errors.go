package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
	"github.com/xenking/kart-promo/pkg/httpmiddleware"
)

// flow says whether a coupon lookup failure came from a user-entered code
// (a rejection) or from an admin lookup by id (a missing resource).
type flow int

const (
	flowAdmin flow = iota
	flowCoupon
)

var rejectionMessages = map[coupon.Kind]string{
	coupon.KindNotFound:           coupon.ErrNotFound.Error(),
	coupon.KindInactive:           coupon.ErrInactive.Error(),
	coupon.KindNotYetValid:        coupon.ErrNotYetValid.Error(),
	coupon.KindExpired:            coupon.ErrExpired.Error(),
	coupon.KindGlobalLimitReached: coupon.ErrGlobalLimitReached.Error(),
	coupon.KindUserLimitReached:   coupon.ErrUserLimitReached.Error(),
	coupon.KindMinOrderNotMet:     coupon.ErrMinOrderNotMet.Error(),
}

// writeErr maps err onto the JSON error envelope.
func writeErr(w http.ResponseWriter, r *http.Request, f flow, err error) {
	status, kind, msg := classify(f, err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, kind, msg)
}

func classify(f flow, err error) (status int, kind, msg string) {
	switch {
	case errors.Is(err, coupon.ErrConcurrentLimitRace):
		return http.StatusConflict, string(coupon.KindConcurrentLimitRace), coupon.ErrConcurrentLimitRace.Error()
	case errors.Is(err, pricing.ErrInvalidArgument):
		return http.StatusBadRequest, string(coupon.KindInvalidArgument), err.Error()
	case errors.Is(err, coupon.ErrCodeExists):
		return http.StatusConflict, string(coupon.KindCodeExists), coupon.ErrCodeExists.Error()
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product_not_found", err.Error()
	case errors.Is(err, sale.ErrNotFound):
		return http.StatusNotFound, "sale_not_found", sale.ErrNotFound.Error()
	case errors.Is(err, coupon.ErrNotFound) && f == flowAdmin:
		return http.StatusNotFound, "coupon_not_found", coupon.ErrNotFound.Error()
	case coupon.IsRejection(err):
		k := coupon.KindOf(err)
		msg := rejectionMessages[k]
		var minErr *coupon.MinOrderNotMetError
		if errors.As(err, &minErr) {
			msg = minErr.Error()
		}
		return http.StatusUnprocessableEntity, string(k), msg
	default:
		return http.StatusInternalServerError, string(coupon.KindInternal), "internal server error"
	}
}
