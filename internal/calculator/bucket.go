package calculator

import (
	"math"

	"github.com/shopspring/decimal"
)

// Bucket indexes run from MaxPriceIndex (highest price) at 0 down to the
// minimum price at MaxBucketIndex. Each step is a 0.5% price move.
const (
	MaxBucketIndex = 7388
	unityIndex     = 4156
	priceStep      = 1.005
)

// IndexToPrice returns the price of the bucket at index.
func IndexToPrice(index int64) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(priceStep, float64(unityIndex-index)))
}

// PriceToIndex returns the bucket index nearest to price, clamped to the
// valid range. Non-positive prices map to the lowest bucket.
func PriceToIndex(price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return MaxBucketIndex
	}
	steps := math.Round(math.Log(price.InexactFloat64()) / math.Log(priceStep))
	index := int64(unityIndex - steps)
	if index < 0 {
		return 0
	}
	if index > MaxBucketIndex {
		return MaxBucketIndex
	}
	return index
}
