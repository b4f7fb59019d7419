package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LiquidationAuction is an in-progress liquidation as reported by the indexer.
type LiquidationAuction struct {
	Borrower            common.Address
	CollateralRemaining decimal.Decimal
	KickTime            time.Time
	ReferencePrice      decimal.Decimal
}

// LiquidationsSnapshot is the indexer view of a pool's active auctions.
type LiquidationsSnapshot struct {
	HPB      decimal.Decimal
	HPBIndex int64
	Auctions []LiquidationAuction
}

// AuctionStatus is the live protocol view of an auction.
type AuctionStatus struct {
	KickTime         time.Time
	Collateral       *big.Int
	DebtToCover      *big.Int
	IsCollateralized bool
	Price            decimal.Decimal
	NeutralPrice     decimal.Decimal
}

// Takeable reports whether the auction still has collateral to buy.
func (s AuctionStatus) Takeable() bool {
	return !s.KickTime.IsZero() && s.Collateral != nil && s.Collateral.Sign() > 0
}

// TakeInstruction targets one auction at one bucket.
type TakeInstruction struct {
	Borrower    common.Address
	BucketIndex int64
}
