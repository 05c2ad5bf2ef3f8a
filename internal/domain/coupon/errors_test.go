package coupon

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitRaceError(t *testing.T) {
	err := errors.Wrap(&LimitRaceError{Limit: ErrGlobalLimitReached}, "redeem")

	require.ErrorIs(t, err, ErrConcurrentLimitRace)
	require.ErrorIs(t, err, ErrGlobalLimitReached)
	assert.NotErrorIs(t, err, ErrUserLimitReached)
	assert.Equal(t, KindConcurrentLimitRace, KindOf(err))
	assert.True(t, IsRejection(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrNotFound, KindNotFound},
		{errors.Wrap(ErrInactive, "validate"), KindInactive},
		{ErrNotYetValid, KindNotYetValid},
		{ErrExpired, KindExpired},
		{ErrGlobalLimitReached, KindGlobalLimitReached},
		{ErrUserLimitReached, KindUserLimitReached},
		{&MinOrderNotMetError{Required: d("10")}, KindMinOrderNotMet},
		{&LimitRaceError{Limit: ErrUserLimitReached}, KindConcurrentLimitRace},
		{errors.Wrap(ErrInvalidArgument, "bad"), KindInvalidArgument},
		{ErrCodeExists, KindCodeExists},
		{context.DeadlineExceeded, KindInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}

	assert.False(t, IsRejection(ErrInvalidArgument))
	assert.False(t, IsRejection(ErrCodeExists))
	assert.True(t, IsRejection(ErrExpired))
}
