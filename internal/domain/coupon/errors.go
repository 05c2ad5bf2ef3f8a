package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

var (
	// ErrInvalidArgument is shared with package pricing so malformed rules and
	// malformed requests match the same sentinel.
	ErrInvalidArgument = pricing.ErrInvalidArgument

	ErrNotFound           = errors.New("coupon not found")
	ErrInactive           = errors.New("coupon is inactive")
	ErrNotYetValid        = errors.New("coupon is not yet valid")
	ErrExpired            = errors.New("coupon expired")
	ErrGlobalLimitReached = errors.New("coupon usage limit reached")
	ErrUserLimitReached   = errors.New("coupon usage limit for this user reached")
	ErrMinOrderNotMet     = errors.New("minimum order amount not met")
	// ErrConcurrentLimitRace is returned by Redeem when a limit that passed
	// validation no longer holds inside the redeem transaction.
	ErrConcurrentLimitRace = errors.New("coupon no longer available")
	ErrCodeExists          = errors.New("coupon code already exists")
)

// MinOrderNotMetError carries the amount the order must reach. It matches
// ErrMinOrderNotMet.
type MinOrderNotMetError struct {
	Required decimal.Decimal
}

func (e *MinOrderNotMetError) Error() string {
	return fmt.Sprintf("minimum order amount of %s not met", e.Required.StringFixed(2))
}

func (e *MinOrderNotMetError) Is(target error) bool {
	return target == ErrMinOrderNotMet
}

// LimitRaceError reports a limit lost to a concurrent redemption. It matches
// both ErrConcurrentLimitRace and the wrapped limit error.
type LimitRaceError struct {
	Limit error
}

func (e *LimitRaceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConcurrentLimitRace, e.Limit)
}

func (e *LimitRaceError) Unwrap() error { return e.Limit }

func (e *LimitRaceError) Is(target error) bool {
	return target == ErrConcurrentLimitRace
}

// Kind is a stable, transport-friendly name for an error.
type Kind string

const (
	KindInvalidArgument     Kind = "invalid_argument"
	KindNotFound            Kind = "not_found"
	KindInactive            Kind = "inactive"
	KindNotYetValid         Kind = "not_yet_valid"
	KindExpired             Kind = "expired"
	KindGlobalLimitReached  Kind = "global_limit_reached"
	KindUserLimitReached    Kind = "user_limit_reached"
	KindMinOrderNotMet      Kind = "min_order_not_met"
	KindConcurrentLimitRace Kind = "concurrent_limit_race"
	KindCodeExists          Kind = "code_exists"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	// Race first: a LimitRaceError also matches its limit error.
	{ErrConcurrentLimitRace, KindConcurrentLimitRace},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrNotFound, KindNotFound},
	{ErrInactive, KindInactive},
	{ErrNotYetValid, KindNotYetValid},
	{ErrExpired, KindExpired},
	{ErrGlobalLimitReached, KindGlobalLimitReached},
	{ErrUserLimitReached, KindUserLimitReached},
	{ErrMinOrderNotMet, KindMinOrderNotMet},
	{ErrCodeExists, KindCodeExists},
}

// KindOf classifies err. Errors outside the coupon taxonomy are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRejection reports whether err is a business rejection of the coupon as
// opposed to a malformed request or an infrastructure failure.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindInactive, KindNotYetValid, KindExpired,
		KindGlobalLimitReached, KindUserLimitReached, KindMinOrderNotMet,
		KindConcurrentLimitRace:
		return true
	default:
		return false
	}
}
