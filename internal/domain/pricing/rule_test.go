package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceRule_Validate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	tests := []struct {
		name    string
		rule    PriceRule
		wantErr string
	}{
		{
			name: "valid percentage",
			rule: PriceRule{Kind: DiscountPercentage, Value: d("20"), MaxDiscount: dp("300"), Scope: GlobalScope()},
		},
		{
			name: "valid flat scoped to product",
			rule: PriceRule{Kind: DiscountFlatAmount, Value: d("200"), Scope: ProductScope("p1"), ValidFrom: &now, ValidUntil: &later},
		},
		{
			name: "equal bounds allowed",
			rule: PriceRule{Kind: DiscountFlatAmount, Value: d("1"), Scope: GlobalScope(), ValidFrom: &now, ValidUntil: &now},
		},
		{
			name:    "percentage above 100",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("100.01"), Scope: GlobalScope()},
			wantErr: "exceeds 100",
		},
		{
			name:    "negative value",
			rule:    PriceRule{Kind: DiscountFlatAmount, Value: d("-1"), Scope: GlobalScope()},
			wantErr: "negative",
		},
		{
			name:    "negative cap",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), MaxDiscount: dp("-5"), Scope: GlobalScope()},
			wantErr: "max discount",
		},
		{
			name:    "negative min order",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), MinOrderAmount: dp("-5"), Scope: GlobalScope()},
			wantErr: "min order",
		},
		{
			name: "trailing zeros allowed",
			rule: PriceRule{Kind: DiscountFlatAmount, Value: d("33.330"), Scope: GlobalScope()},
		},
		{
			name:    "value with three decimals",
			rule:    PriceRule{Kind: DiscountFlatAmount, Value: d("33.335"), Scope: GlobalScope()},
			wantErr: "more than 2 decimal places",
		},
		{
			name:    "cap with three decimals",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), MaxDiscount: dp("5.001"), Scope: GlobalScope()},
			wantErr: "max discount",
		},
		{
			name:    "min order too large",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), MinOrderAmount: dp("10000000000"), Scope: GlobalScope()},
			wantErr: "exceeds",
		},
		{
			name:    "flat value too large",
			rule:    PriceRule{Kind: DiscountFlatAmount, Value: d("1e12"), Scope: GlobalScope()},
			wantErr: "exceeds",
		},
		{
			name:    "reversed window",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), ValidFrom: &later, ValidUntil: &now, Scope: GlobalScope()},
			wantErr: "valid_from is after valid_until",
		},
		{
			name:    "unknown kind",
			rule:    PriceRule{Kind: "bogo", Value: d("10"), Scope: GlobalScope()},
			wantErr: "unknown discount kind",
		},
		{
			name:    "category scope without target",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), Scope: Scope{Kind: ScopeCategory}},
			wantErr: "requires a target",
		},
		{
			name:    "unknown scope",
			rule:    PriceRule{Kind: DiscountPercentage, Value: d("10"), Scope: Scope{Kind: "brand", TargetID: "x"}},
			wantErr: "unknown scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPriceRule_ActiveAt(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	rule := PriceRule{ValidFrom: &from, ValidUntil: &until}

	assert.True(t, rule.ActiveAt(from), "lower bound is inclusive")
	assert.True(t, rule.ActiveAt(until), "upper bound is inclusive")
	assert.True(t, rule.ActiveAt(from.Add(time.Hour)))
	assert.False(t, rule.ActiveAt(from.Add(-time.Nanosecond)))
	assert.False(t, rule.ActiveAt(until.Add(time.Nanosecond)))

	assert.True(t, PriceRule{}.ActiveAt(from), "no bounds means always active")
	assert.True(t, PriceRule{ValidUntil: &until}.ActiveAt(time.Time{}))

	instant := PriceRule{ValidFrom: &from, ValidUntil: &from}
	assert.True(t, instant.ActiveAt(from))
	assert.False(t, instant.ActiveAt(from.Add(time.Nanosecond)))
}

func TestScope_Matches(t *testing.T) {
	assert.True(t, GlobalScope().Matches("p1", "c1"))
	assert.True(t, CategoryScope("c1").Matches("p1", "c1"))
	assert.False(t, CategoryScope("c2").Matches("p1", "c1"))
	assert.True(t, ProductScope("p1").Matches("p1", "c1"))
	assert.False(t, ProductScope("p2").Matches("p1", "c1"))
	assert.False(t, CategoryScope("").Matches("p1", ""))
	assert.False(t, Scope{Kind: "brand", TargetID: "b"}.Matches("p1", "c1"))

	assert.Greater(t, ProductScope("p").Specificity(), CategoryScope("c").Specificity())
	assert.Greater(t, CategoryScope("c").Specificity(), GlobalScope().Specificity())
}

func TestFromOfferType(t *testing.T) {
	tests := []struct {
		offer     string
		wantKind  DiscountKind
		wantScope ScopeKind
	}{
		{"percentage", DiscountPercentage, ScopeGlobal},
		{"flat", DiscountFlatAmount, ScopeGlobal},
		{"category", DiscountPercentage, ScopeCategory},
		{"product", DiscountFlatAmount, ScopeProduct},
		{"flash_sale", DiscountPercentage, ScopeGlobal},
	}
	for _, tt := range tests {
		t.Run(tt.offer, func(t *testing.T) {
			kind, scope, err := FromOfferType(tt.offer)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantScope, scope)
		})
	}

	_, _, err := FromOfferType("bogus")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
