package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolPrices holds the pool-internal reference prices.
// LLB is only set when the reader can supply it.
type PoolPrices struct {
	HPB      decimal.Decimal
	HPBIndex int64
	HTP      decimal.Decimal
	LUP      decimal.Decimal
	LUPIndex int64
	LLB      decimal.NullDecimal
}

// PoolInfo identifies a configured pool and its tokens.
type PoolInfo struct {
	Name       string
	Address    common.Address
	Quote      common.Address
	Collateral common.Address
}
