package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule          *Rule
	err           error
	incrementErr  error
	incrementCode string
	lookups       int
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Rule, error) {
	m.lookups++
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.incrementCode = code
	return m.incrementErr
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name         string
		rule         Rule
		amount       decimal.Decimal
		wantValid    bool
		wantDiscount decimal.Decimal
		wantMessage  string
	}{
		{
			name:         "percentage",
			rule:         Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10"), Description: "10% off"},
			amount:       d("1000"),
			wantValid:    true,
			wantDiscount: d("100"),
			wantMessage:  "Coupon applied: 10% off",
		},
		{
			name:         "percentage capped by max discount",
			rule:         Rule{Code: "HALF", DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: d("200")},
			amount:       d("1000"),
			wantValid:    true,
			wantDiscount: d("200"),
			wantMessage:  "Coupon applied: HALF",
		},
		{
			name:         "percentage rounds to two places",
			rule:         Rule{Code: "ODD", DiscountType: DiscountPercentage, Value: d("15")},
			amount:       d("99.99"),
			wantValid:    true,
			wantDiscount: d("15"),
			wantMessage:  "Coupon applied: ODD",
		},
		{
			name:         "fixed",
			rule:         Rule{Code: "FLAT150", DiscountType: DiscountFixed, Value: d("150"), Description: "Flat 150 off"},
			amount:       d("1049"),
			wantValid:    true,
			wantDiscount: d("150"),
			wantMessage:  "Coupon applied: Flat 150 off",
		},
		{
			name:         "fixed capped at amount",
			rule:         Rule{Code: "BIG", DiscountType: DiscountFixed, Value: d("500")},
			amount:       d("300"),
			wantValid:    true,
			wantDiscount: d("300"),
			wantMessage:  "Coupon applied: BIG",
		},
		{
			name:        "below minimum order amount",
			rule:        Rule{Code: "MIN", DiscountType: DiscountFixed, Value: d("50"), MinOrderAmount: d("500")},
			amount:      d("499.99"),
			wantMessage: "Minimum order amount of 500.00 required",
		},
		{
			name:        "expired",
			rule:        Rule{Code: "OLD", DiscountType: DiscountFixed, Value: d("5"), ValidUntil: &past},
			amount:      d("100"),
			wantMessage: MsgExpired,
		},
		{
			name:        "not active yet",
			rule:        Rule{Code: "SOON", DiscountType: DiscountFixed, Value: d("5"), ValidFrom: &future},
			amount:      d("100"),
			wantMessage: MsgNotYetActive,
		},
		{
			name:        "usage limit reached",
			rule:        Rule{Code: "ONCE", DiscountType: DiscountFixed, Value: d("5"), MaxUses: 1, Uses: 1},
			amount:      d("100"),
			wantMessage: MsgUsageExceeded,
		},
		{
			name:        "unknown discount type",
			rule:        Rule{Code: "WEIRD", DiscountType: "free_lowest", Value: d("5")},
			amount:      d("100"),
			wantMessage: MsgInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(&tt.rule, tt.amount, now)

			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantMessage, res.Message)
			if tt.wantValid {
				require.NotNil(t, res.Coupon)
				assert.Equal(t, tt.rule.Code, res.Coupon.Code)
				assert.True(t, tt.wantDiscount.Equal(res.DiscountAmount),
					"want %s, got %s", tt.wantDiscount, res.DiscountAmount)
			} else {
				assert.Nil(t, res.Coupon)
				assert.True(t, res.DiscountAmount.IsZero())
			}
		})
	}
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		repo        *mockCouponRepo
		code        string
		wantValid   bool
		wantMessage string
		wantErr     bool
	}{
		{
			name: "valid code",
			repo: &mockCouponRepo{rule: &Rule{
				ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10"), Description: "10% off",
			}},
			code:        " save10 ",
			wantValid:   true,
			wantMessage: "Coupon applied: 10% off",
		},
		{
			name:        "unknown code",
			repo:        &mockCouponRepo{err: ErrNotFound},
			code:        "BOGUS",
			wantMessage: MsgInvalid,
		},
		{
			name:        "empty code",
			repo:        &mockCouponRepo{},
			code:        "   ",
			wantMessage: MsgInvalid,
		},
		{
			name:    "storage failure is an error",
			repo:    &mockCouponRepo{err: errors.New("connection refused")},
			code:    "SAVE10",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo, nil)
			v.now = func() time.Time { return fixedNow }

			res, err := v.Validate(context.Background(), tt.code, d("1000"))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.Empty(t, tt.repo.incrementCode, "validation must not consume a use")
		})
	}
}

func TestRepoValidator_BloomIndexShortCircuits(t *testing.T) {
	repo := &mockCouponRepo{rule: &Rule{Code: "SAVE10", DiscountType: DiscountFixed, Value: d("10")}}
	index := NewBloomIndex(1000, 0.0001)
	index.Add("save10")
	v := NewRepoValidator(repo, index)

	res, err := v.Validate(context.Background(), "SAVE10", d("100"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, repo.lookups)

	res, err = v.Validate(context.Background(), "NOTACODE-123", d("100"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgInvalid, res.Message)
	assert.Equal(t, 1, repo.lookups)
}

func TestRepoValidator_IndexAddAdmitsNewCode(t *testing.T) {
	repo := &mockCouponRepo{rule: &Rule{Code: "FRESH20", DiscountType: DiscountFixed, Value: d("20")}}
	index := NewBloomIndex(1000, 0.0001)
	index.Add("SAVE10")
	v := NewRepoValidator(repo, index)

	res, err := v.Validate(context.Background(), "FRESH20", d("100"))
	require.NoError(t, err)
	assert.False(t, res.Valid, "not yet indexed")
	assert.Zero(t, repo.lookups)

	index.Add("FRESH20")
	res, err = v.Validate(context.Background(), "fresh20", d("100"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, repo.lookups)
}

func TestRepoValidator_Redeem(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo, nil)

	require.NoError(t, v.Redeem(context.Background(), "save10"))
	assert.Equal(t, "SAVE10", repo.incrementCode)

	repo.incrementErr = errors.New("db down")
	require.Error(t, v.Redeem(context.Background(), "SAVE10"))
}
