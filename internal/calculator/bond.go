package calculator

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	minBondFactor = decimal.NewFromFloat(0.01)
	maxBondFactor = decimal.NewFromFloat(0.30)
	ten           = decimal.NewFromInt(10)
)

// BondFactor returns clamp((np/tp - 1) / 10, 1%, 30%).
func BondFactor(neutralPrice, thresholdPrice decimal.Decimal) decimal.Decimal {
	if !thresholdPrice.IsPositive() {
		return minBondFactor
	}
	f := neutralPrice.Div(thresholdPrice).Sub(decimal.NewFromInt(1)).Div(ten)
	if f.LessThan(minBondFactor) {
		return minBondFactor
	}
	if f.GreaterThan(maxBondFactor) {
		return maxBondFactor
	}
	return f
}

// LiquidationBond returns the bond in wads required to kick a loan of debt wads.
func LiquidationBond(debt *big.Int, neutralPrice, thresholdPrice decimal.Decimal) *big.Int {
	return DecimalToWad(WadToDecimal(debt).Mul(BondFactor(neutralPrice, thresholdPrice)))
}

// ApplyMargin scales a wad amount by factor, e.g. 1.10 for a 10% safety margin.
func ApplyMargin(amount *big.Int, factor float64) *big.Int {
	return DecimalToWad(WadToDecimal(amount).Mul(decimal.NewFromFloat(factor)))
}
