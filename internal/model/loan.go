package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LoanCandidate is a loan as reported by the indexer.
type LoanCandidate struct {
	Borrower       common.Address
	ThresholdPrice decimal.Decimal
}

// LoansSnapshot is the indexer view of a pool's loans not already in liquidation.
type LoansSnapshot struct {
	LUP   decimal.Decimal
	HPB   decimal.Decimal
	Loans []LoanCandidate
}

// LoanDetails is the live protocol view of a borrower position. Amounts are wads.
type LoanDetails struct {
	Debt            *big.Int
	Collateral      *big.Int
	ThresholdPrice  decimal.Decimal
	NeutralPrice    decimal.Decimal
	LiquidationBond *big.Int
}

// KickInstruction is consumed once by the kick executor.
type KickInstruction struct {
	Borrower        common.Address
	LiquidationBond *big.Int
}
