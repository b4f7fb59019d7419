package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPriceToIndex(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(4156), PriceToIndex(decimal.NewFromInt(1)))
	require.True(t, IndexToPrice(4156).Equal(decimal.NewFromInt(1)))

	for _, idx := range []int64{1, 2000, 3232, 4000, 5000, 7000} {
		require.Equal(t, idx, PriceToIndex(IndexToPrice(idx)), "index %d", idx)
	}
}

func TestPriceToIndexClamps(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(MaxBucketIndex), PriceToIndex(decimal.Zero))
	require.Equal(t, int64(MaxBucketIndex), PriceToIndex(decimal.NewFromInt(-5)))
	require.Equal(t, int64(0), PriceToIndex(decimal.NewFromInt(1_000_000_000_000)))
	require.Equal(t, int64(MaxBucketIndex), PriceToIndex(decimal.RequireFromString("0.0000000000001")))
}

func TestPriceToIndexIsMonotonic(t *testing.T) {
	t.Parallel()

	low := PriceToIndex(decimal.NewFromInt(100))
	high := PriceToIndex(decimal.NewFromInt(200))
	require.Greater(t, low, high)
}
