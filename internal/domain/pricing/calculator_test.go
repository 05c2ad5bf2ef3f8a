package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		rule       PriceRule
		base       decimal.Decimal
		wantAmount decimal.Decimal
	}{
		{
			name:       "percentage 20% off 2000 capped at 300",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("20"), MaxDiscount: dp("300")},
			base:       d("2000"),
			wantAmount: d("300"),
		},
		{
			name:       "percentage under the cap",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("20"), MaxDiscount: dp("300")},
			base:       d("1000"),
			wantAmount: d("200"),
		},
		{
			name:       "percentage without cap",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("18")},
			base:       d("100"),
			wantAmount: d("18"),
		},
		{
			name:       "percentage 100 equals base",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("100")},
			base:       d("42.50"),
			wantAmount: d("42.50"),
		},
		{
			name:       "percentage zero",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("0")},
			base:       d("42.50"),
			wantAmount: d("0"),
		},
		{
			name:       "flat 200 off 1500",
			rule:       PriceRule{Kind: DiscountFlatAmount, Value: d("200")},
			base:       d("1500"),
			wantAmount: d("200"),
		},
		{
			name:       "flat larger than base is capped at base",
			rule:       PriceRule{Kind: DiscountFlatAmount, Value: d("200")},
			base:       d("150"),
			wantAmount: d("150"),
		},
		{
			name:       "flat ignores max discount",
			rule:       PriceRule{Kind: DiscountFlatAmount, Value: d("200"), MaxDiscount: dp("50")},
			base:       d("1500"),
			wantAmount: d("200"),
		},
		{
			name:       "zero base",
			rule:       PriceRule{Kind: DiscountFlatAmount, Value: d("10")},
			base:       d("0"),
			wantAmount: d("0"),
		},
		{
			// 0.25 * 10% = 0.025 -> half-even -> 0.02
			name:       "bankers rounding rounds half down to even",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("10")},
			base:       d("0.25"),
			wantAmount: d("0.02"),
		},
		{
			// 0.35 * 10% = 0.035 -> half-even -> 0.04
			name:       "bankers rounding rounds half up to even",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("10")},
			base:       d("0.35"),
			wantAmount: d("0.04"),
		},
		{
			// 29.97 * 15% = 4.4955 -> 4.50
			name:       "above half rounds up",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("15")},
			base:       d("29.97"),
			wantAmount: d("4.50"),
		},
		{
			// 0.015 * 100% = 0.015 -> 0.02 would exceed base, clamped
			name:       "rounding never exceeds base",
			rule:       PriceRule{Kind: DiscountPercentage, Value: d("100")},
			base:       d("0.015"),
			wantAmount: d("0.015"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.rule, tt.base)
			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got),
				"expected amount %s, got %s", tt.wantAmount, got)
		})
	}
}

func TestApply_Errors(t *testing.T) {
	_, err := Apply(PriceRule{Kind: DiscountFlatAmount, Value: d("1")}, d("-0.01"))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Apply(PriceRule{Kind: DiscountKind("bogus"), Value: d("1")}, d("10"))
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "unsupported discount kind")
}

func TestApply_Bounds(t *testing.T) {
	values := []string{"0", "1", "12.5", "33.33", "50", "99.99", "100"}
	caps := []*decimal.Decimal{nil, dp("0"), dp("7.5"), dp("300")}
	bases := []string{"0", "0.01", "0.99", "19.99", "1000", "123456.78"}

	for _, v := range values {
		for _, c := range caps {
			for _, b := range bases {
				base := d(b)
				rule := PriceRule{Kind: DiscountPercentage, Value: d(v), MaxDiscount: c}

				got, err := Apply(rule, base)
				require.NoError(t, err)

				assert.False(t, got.IsNegative(), "negative discount for %s%% of %s", v, b)
				assert.True(t, got.LessThanOrEqual(base), "discount %s exceeds base %s", got, b)
				ceiling := base.Mul(d(v)).Div(hundred).RoundBank(2)
				assert.True(t, got.LessThanOrEqual(ceiling), "discount %s exceeds %s%% of %s", got, v, b)
				if c != nil {
					assert.True(t, got.LessThanOrEqual(*c), "discount %s exceeds cap %s", got, c)
				}
			}
		}
	}

	for _, v := range []string{"0", "0.01", "5", "200", "99999"} {
		for _, b := range bases {
			base := d(b)
			final, err := FinalPrice(PriceRule{Kind: DiscountFlatAmount, Value: d(v)}, base)
			require.NoError(t, err)
			assert.False(t, final.IsNegative(), "final price negative for flat %s on %s", v, b)
			assert.True(t, final.LessThanOrEqual(base))
		}
	}
}

func TestFinalPrice(t *testing.T) {
	final, err := FinalPrice(PriceRule{Kind: DiscountPercentage, Value: d("20"), MaxDiscount: dp("300")}, d("2000"))
	require.NoError(t, err)
	assert.True(t, d("1700").Equal(final), "got %s", final)

	final, err = FinalPrice(PriceRule{Kind: DiscountFlatAmount, Value: d("200")}, d("1500"))
	require.NoError(t, err)
	assert.True(t, d("1300").Equal(final), "got %s", final)
}
