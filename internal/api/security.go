package api

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/internal/domain/auth"
	"github.com/xenking/kart-promo/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's raw API key.
const APIKeyHeader = "X-API-Key"

type apiKeyCtxKey struct{}

// KeyFromContext returns the authenticated API key, if any.
func KeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	k, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return k, ok
}

// authenticate resolves X-API-Key by its HMAC hash and compares the stored
// hash in constant time.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw := r.Header.Get(APIKeyHeader)
		if raw == "" {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing api key")
			return
		}
		info, err := h.lookupKey(ctx, raw)
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(ctx).Error("API key lookup failed", zap.Error(err))
			}
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiKeyCtxKey{}, info)))
	})
}

func (h *Handler) lookupKey(ctx context.Context, raw string) (*auth.APIKeyInfo, error) {
	hash := auth.HashKey(h.pepper, raw)
	info, err := h.APIKeys.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errors.Wrap(err, "decode computed hash")
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := KeyFromContext(r.Context())
			if !ok || !info.HasScope(scope) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
