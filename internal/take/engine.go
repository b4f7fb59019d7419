// Package take buys collateral out of discounted liquidation auctions with arbTake.
package take

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"PoolKeeper/internal/config"
	"PoolKeeper/internal/metrics"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/txqueue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type Indexer interface {
	GetLiquidations(ctx context.Context, pool common.Address, minCollateral decimal.Decimal) (*model.LiquidationsSnapshot, error)
}

type Pool interface {
	Info() model.PoolInfo
	AuctionStatus(ctx context.Context, borrower common.Address) (model.AuctionStatus, error)
	ArbTake(ctx context.Context, borrower common.Address, bucketIndex int64) error
	WithdrawLiquidity(ctx context.Context, bucketIndex int64) error
}

type Submitter interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
}

// Result is the outcome of one take instruction.
type Result struct {
	Borrower    common.Address
	BucketIndex int64
	Outcome     string
	Withdrawn   bool
	Err         error
}

type Params struct {
	Pool     Pool
	Indexer  Indexer
	Queue    Submitter
	Config   config.TakeConfig
	DryRun   bool
	Delay    time.Duration
	Clock    clockwork.Clock
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// Engine evaluates and takes auctions for one (pool, signer) pair. It keeps
// the prices seen during the last selection so executions can be journaled.
type Engine struct {
	pool     Pool
	indexer  Indexer
	txq      Submitter
	cfg      config.TakeConfig
	dryRun   bool
	delay    time.Duration
	clock    clockwork.Clock
	rec      recorder.Recorder
	log      *slog.Logger
	poolName string

	mu       sync.Mutex
	lastHPB  decimal.Decimal
	auctions map[common.Address]decimal.Decimal
}

func NewEngine(p Params) *Engine {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Recorder == nil {
		p.Recorder = recorder.NewNoopRecorder()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	info := p.Pool.Info()
	return &Engine{
		pool:     p.Pool,
		indexer:  p.Indexer,
		txq:      p.Queue,
		cfg:      p.Config,
		dryRun:   p.DryRun,
		delay:    p.Delay,
		clock:    p.Clock,
		rec:      p.Recorder,
		log:      p.Logger.With("pool", info.Name),
		poolName: info.Name,
		auctions: make(map[common.Address]decimal.Decimal),
	}
}

// Discounted reports whether the auction price is below hpb scaled by priceFactor.
func Discounted(auctionPrice, hpb, priceFactor decimal.Decimal) bool {
	return auctionPrice.LessThan(hpb.Mul(priceFactor))
}

// Select returns the auctions whose price is discounted enough to arbTake
// into the highest price bucket.
func (e *Engine) Select(ctx context.Context) ([]model.TakeInstruction, error) {
	info := e.pool.Info()
	snap, err := e.indexer.GetLiquidations(ctx, info.Address, decimal.NewFromFloat(e.cfg.MinCollateral))
	if err != nil {
		return nil, err
	}

	factor := decimal.NewFromFloat(e.cfg.PriceFactor)
	seen := make(map[common.Address]decimal.Decimal, len(snap.Auctions))
	var out []model.TakeInstruction
	for _, auction := range snap.Auctions {
		status, err := e.pool.AuctionStatus(ctx, auction.Borrower)
		if err != nil {
			e.log.Warn("failed to read auction status", "borrower", auction.Borrower.Hex(), "error", err)
			continue
		}
		if !status.Takeable() {
			e.log.Debug("auction not takeable", "borrower", auction.Borrower.Hex())
			continue
		}
		if !Discounted(status.Price, snap.HPB, factor) {
			e.log.Debug("auction price not discounted enough",
				"borrower", auction.Borrower.Hex(),
				"auctionPrice", status.Price.String(),
				"hpb", snap.HPB.String())
			continue
		}
		seen[auction.Borrower] = status.Price
		out = append(out, model.TakeInstruction{Borrower: auction.Borrower, BucketIndex: snap.HPBIndex})
	}

	e.mu.Lock()
	e.lastHPB = snap.HPB
	e.auctions = seen
	e.mu.Unlock()
	return out, nil
}

// Handle selects auctions and arbTakes each of them, pausing between actions.
func (e *Engine) Handle(ctx context.Context) ([]Result, error) {
	instructions, err := e.Select(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(instructions))
	for i, ins := range instructions {
		if i > 0 {
			if err := e.sleep(ctx); err != nil {
				return results, err
			}
		}
		results = append(results, e.ArbTake(ctx, ins))
	}
	return results, nil
}

// ArbTake executes one instruction. Failures are logged and reported in the
// Result, never returned.
func (e *Engine) ArbTake(ctx context.Context, ins model.TakeInstruction) Result {
	log := e.log.With("borrower", ins.Borrower.Hex(), "bucketIndex", ins.BucketIndex)
	res := Result{Borrower: ins.Borrower, BucketIndex: ins.BucketIndex}

	if e.dryRun {
		log.Info("DryRun - would arbTake auction", "withdrawRewardLiquidity", e.cfg.WithdrawRewardLiquidity)
		res.Outcome = recorder.OutcomeDryRun
		e.record(res)
		return res
	}

	log.Info("sending arbTake transaction")
	err := e.txq.Submit(ctx, func(ctx context.Context) error {
		return e.pool.ArbTake(ctx, ins.Borrower, ins.BucketIndex)
	})
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		log.Warn("arbTake sent but nonce did not advance, outcome unknown", "error", err)
		res.Outcome, res.Err = recorder.OutcomeUnknown, err
		e.record(res)
		return res
	case err != nil:
		log.Error("failed to arbTake auction", "error", err)
		res.Outcome, res.Err = recorder.OutcomeFailed, err
		e.record(res)
		return res
	}
	log.Info("arbTake transaction confirmed")
	res.Outcome = recorder.OutcomeSuccess
	e.record(res)

	if e.cfg.WithdrawRewardLiquidity {
		res.Withdrawn = e.withdraw(ctx, log, ins.BucketIndex)
	}
	return res
}

func (e *Engine) withdraw(ctx context.Context, log *slog.Logger, index int64) bool {
	if err := e.sleep(ctx); err != nil {
		return false
	}
	log.Info("withdrawing reward liquidity")
	err := e.txq.Submit(ctx, func(ctx context.Context) error {
		return e.pool.WithdrawLiquidity(ctx, index)
	})
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		log.Warn("liquidity withdrawal sent but nonce did not advance", "error", err)
		return true
	case err != nil:
		log.Error("failed to withdraw reward liquidity", "error", err)
		return false
	}
	return true
}

func (e *Engine) record(res Result) {
	metrics.TakesTotal.WithLabelValues(e.poolName, res.Outcome).Inc()

	e.mu.Lock()
	price, hpb := e.auctions[res.Borrower], e.lastHPB
	e.mu.Unlock()

	evt := &recorder.TakeEvent{
		Pool:         e.pool.Info().Address.Hex(),
		Borrower:     res.Borrower.Hex(),
		BucketIndex:  res.BucketIndex,
		AuctionPrice: price.String(),
		HPB:          hpb.String(),
		DryRun:       e.dryRun,
		Outcome:      res.Outcome,
	}
	if res.Err != nil {
		evt.Error = res.Err.Error()
	}
	if err := e.rec.RecordTake(evt); err != nil {
		e.log.Error("record take", "error", err)
	}
}

func (e *Engine) sleep(ctx context.Context) error {
	if e.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.clock.After(e.delay):
		return nil
	}
}
