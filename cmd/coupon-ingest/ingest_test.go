package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// --- Mock implementations ---

type mockUpserter struct {
	batches [][]coupon.Rule
}

func (m *mockUpserter) Upsert(_ context.Context, rules ...coupon.Rule) error {
	m.batches = append(m.batches, append([]coupon.Rule(nil), rules...))
	return nil
}

// --- Helpers ---

func writeGz(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coupons.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

// --- Tests ---

func TestDecodeRule(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		check   func(t *testing.T, r coupon.Rule)
		wantErr string
	}{
		{
			name: "percentage",
			line: `{"code":" save10 ","discountType":"percentage","value":10,"minOrderAmount":"500","maxDiscount":200,"validUntil":"2026-12-31T23:59:59Z","maxUses":100,"unknown":[1]}`,
			check: func(t *testing.T, r coupon.Rule) {
				assert.Equal(t, "SAVE10", r.Code)
				assert.Equal(t, coupon.DiscountPercentage, r.DiscountType)
				assert.True(t, decimal.NewFromInt(10).Equal(r.Value))
				assert.True(t, decimal.NewFromInt(500).Equal(r.MinOrderAmount))
				assert.True(t, decimal.NewFromInt(200).Equal(r.MaxDiscount))
				assert.Nil(t, r.ValidFrom)
				require.NotNil(t, r.ValidUntil)
				assert.True(t, r.ValidUntil.Equal(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
				assert.Equal(t, 100, r.MaxUses)
			},
		},
		{
			name: "fixed with nulls",
			line: `{"code":"FLAT50","discountType":"fixed","value":"50.00","maxDiscount":null,"validFrom":null}`,
			check: func(t *testing.T, r coupon.Rule) {
				assert.Equal(t, coupon.DiscountFixed, r.DiscountType)
				assert.True(t, r.MaxDiscount.IsZero())
				assert.Nil(t, r.ValidFrom)
			},
		},
		{name: "missing code", line: `{"discountType":"fixed","value":5}`, wantErr: "code is required"},
		{name: "unknown type", line: `{"code":"X","discountType":"free_lowest","value":5}`, wantErr: "unknown discount type"},
		{name: "zero value", line: `{"code":"X","discountType":"fixed","value":0}`, wantErr: "value must be positive"},
		{name: "percentage over 100", line: `{"code":"X","discountType":"percentage","value":150}`, wantErr: "must not exceed 100"},
		{
			name:    "inverted window",
			line:    `{"code":"X","discountType":"fixed","value":5,"validFrom":"2026-02-01T00:00:00Z","validUntil":"2026-01-01T00:00:00Z"}`,
			wantErr: "validUntil is before validFrom",
		},
		{name: "bad time", line: `{"code":"X","discountType":"fixed","value":5,"validUntil":"soon"}`, wantErr: "validUntil"},
		{name: "not json", line: `code=X`, wantErr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := decodeRule([]byte(tt.line))
			if tt.check == nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, r)
		})
	}
}

func TestStreamFile(t *testing.T) {
	path := writeGz(t,
		`{"code":"A1","discountType":"fixed","value":5}`,
		``,
		`{"code":"A2","discountType":"oops","value":5}`,
		`{"code":"A3","discountType":"percentage","value":"12.5"}`,
	)

	var (
		got     []string
		skipped []int
	)
	n, err := streamFile(context.Background(), path, func(r coupon.Rule) error {
		got = append(got, r.Code)
		return nil
	}, func(line int, _ error) {
		skipped = append(skipped, line)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A1", "A3"}, got)
	assert.Equal(t, []int{3}, skipped)
}

func TestStreamFile_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jsonl.gz")
	require.NoError(t, os.WriteFile(path, []byte(`{"code":"A1"}`), 0o600))

	_, err := streamFile(context.Background(), path, func(coupon.Rule) error { return nil }, func(int, error) {})
	require.Error(t, err)
}

func TestWriter_BatchesAndDedupes(t *testing.T) {
	repo := &mockUpserter{}
	w := newWriter(repo, 2, zap.NewNop())
	ctx := context.Background()

	for _, r := range []sourcedRule{
		{Rule: coupon.Rule{Code: "A"}, file: "one"},
		{Rule: coupon.Rule{Code: "B"}, file: "one"},
		{Rule: coupon.Rule{Code: "A"}, file: "two"},
		{Rule: coupon.Rule{Code: "C"}, file: "two"},
	} {
		require.NoError(t, w.add(ctx, r))
	}
	require.NoError(t, w.flush(ctx))

	require.Len(t, repo.batches, 2)
	assert.Len(t, repo.batches[0], 2)
	assert.Equal(t, "C", repo.batches[1][0].Code)
	assert.Equal(t, 3, w.written)
	assert.Equal(t, 1, w.duplicates)
}
