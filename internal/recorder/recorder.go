package recorder

import "time"

// Outcomes shared by all journal rows.
const (
	OutcomeDryRun       = "dry_run"
	OutcomeSuccess      = "success"
	OutcomeFailed       = "failed"
	OutcomeUnknown      = "unknown"
	OutcomeInsufficient = "insufficient_funds"
	OutcomeSkipped      = "skipped"
)

// KickEvent records one kick attempt.
type KickEvent struct {
	Pool       string
	Borrower   string
	Bond       string
	LimitIndex int64
	DryRun     bool
	Outcome    string
	Error      string
}

// TakeEvent records one arbTake attempt.
type TakeEvent struct {
	Pool         string
	Borrower     string
	BucketIndex  int64
	AuctionPrice string
	HPB          string
	DryRun       bool
	Outcome      string
	Error        string
}

// DisposalEvent records one reward transfer or swap.
type DisposalEvent struct {
	Action  string
	Token   string
	Target  string
	Amount  string
	Outcome string
	Error   string
}

// LPCollectEvent records one LP reward redemption.
type LPCollectEvent struct {
	Pool        string
	BucketIndex int64
	RedeemAs    string
	Amount      string
	LPConsumed  string
	DryRun      bool
	Outcome     string
	Error       string
}

// BondWithdrawEvent records one kicker bond withdrawal.
type BondWithdrawEvent struct {
	Pool      string
	Claimable string
	DryRun    bool
	Outcome   string
	Error     string
}

// Recorder journals every keeper action for later reconciliation.
type Recorder interface {
	RecordKick(evt *KickEvent) error
	RecordTake(evt *TakeEvent) error
	RecordDisposal(evt *DisposalEvent) error
	RecordLPCollect(evt *LPCollectEvent) error
	RecordBondWithdraw(evt *BondWithdrawEvent) error
	// CountSince returns row counts per "table/outcome" recorded after since.
	CountSince(since time.Time) (map[string]int, error)
	Close() error
}
