package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind selects how an accumulated reward is disposed of.
type ActionKind string

const (
	ActionTransfer ActionKind = "transfer"
	ActionExchange ActionKind = "exchange"
)

// RewardAction is the configured fate of a reward credit. It is comparable and
// used directly inside map keys.
type RewardAction struct {
	Kind ActionKind

	// Transfer
	To common.Address

	// Exchange
	TargetToken       string
	Slippage          float64
	FeeTier           uint32
	UseAlternateRoute bool
}

// CreditKey identifies one accumulator entry.
type CreditKey struct {
	Action RewardAction
	Token  common.Address
}

// Credit is a snapshot of one accumulator entry.
type Credit struct {
	CreditKey
	Amount *big.Int
}

// RedeemAs selects which token LP rewards are redeemed into.
type RedeemAs string

const (
	RedeemQuote      RedeemAs = "quote"
	RedeemCollateral RedeemAs = "collateral"
)

// LPAward is one BucketTakeLPAwarded event credited to the keeper.
type LPAward struct {
	Pool        common.Address
	BucketIndex int64
	LP          *big.Int
	TxHash      common.Hash
}

// BucketStatus is the live state of one price bucket. Amounts are wads.
type BucketStatus struct {
	Price        *big.Int
	Deposit      *big.Int
	Collateral   *big.Int
	BucketLP     *big.Int
	ExchangeRate *big.Int
}

// KickerInfo is the bond state of a kicker.
type KickerInfo struct {
	Claimable *big.Int
	Locked    *big.Int
}

type SwapRequest struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Recipient         common.Address
	Slippage          float64
	FeeTier           uint32
	UseAlternateRoute bool
}
