// Package kick selects undercollateralized loans worth liquidating and kicks them.
package kick

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/config"
	"PoolKeeper/internal/metrics"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/txqueue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Indexer supplies loan snapshots.
type Indexer interface {
	GetLoans(ctx context.Context, pool common.Address) (*model.LoansSnapshot, error)
}

// Pool is the protocol surface the kick engine needs.
type Pool interface {
	Info() model.PoolInfo
	GetLoan(ctx context.Context, borrower common.Address) (model.LoanDetails, error)
	QuoteBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	ApproveQuote(ctx context.Context, amount *big.Int) error
	Kick(ctx context.Context, borrower common.Address, limitIndex int64) error
}

// Submitter serializes mutating calls for one signer.
type Submitter interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
}

// Result is the outcome of one kick instruction.
type Result struct {
	Borrower common.Address
	Bond     *big.Int
	Outcome  string
	Err      error
}

// Params configures an Engine.
type Params struct {
	Pool     Pool
	Indexer  Indexer
	Queue    Submitter
	Config   config.KickConfig
	Signer   common.Address
	DryRun   bool
	Delay    time.Duration
	Clock    clockwork.Clock
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// Engine evaluates and kicks loans for one (pool, signer) pair.
type Engine struct {
	pool     Pool
	indexer  Indexer
	txq      Submitter
	cfg      config.KickConfig
	signer   common.Address
	dryRun   bool
	delay    time.Duration
	clock    clockwork.Clock
	rec      recorder.Recorder
	log      *slog.Logger
	poolName string
}

// NewEngine creates an Engine.
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
	if p.Config.ApprovalMargin < 1 {
		p.Config.ApprovalMargin = 1
	}
	info := p.Pool.Info()
	return &Engine{
		pool:     p.Pool,
		indexer:  p.Indexer,
		txq:      p.Queue,
		cfg:      p.Config,
		signer:   p.Signer,
		dryRun:   p.DryRun,
		delay:    p.Delay,
		clock:    p.Clock,
		rec:      p.Recorder,
		log:      p.Logger.With("pool", info.Name),
		poolName: info.Name,
	}
}

// Profitable reports whether a kick pays off: the neutral price, discounted
// by priceFactor, must exceed the market price and must sit above the hpb.
func Profitable(neutralPrice, priceFactor, marketPrice, hpb decimal.Decimal) bool {
	return neutralPrice.Mul(priceFactor).GreaterThan(marketPrice) && neutralPrice.GreaterThan(hpb)
}

// Select returns the loans worth kicking at marketPrice.
func (e *Engine) Select(ctx context.Context, marketPrice decimal.Decimal) ([]model.KickInstruction, error) {
	info := e.pool.Info()
	snap, err := e.indexer.GetLoans(ctx, info.Address)
	if err != nil {
		return nil, err
	}

	minDebt := decimal.NewFromFloat(e.cfg.MinDebt)
	factor := decimal.NewFromFloat(e.cfg.PriceFactor)

	var out []model.KickInstruction
	for _, loan := range snap.Loans {
		// Collateralized above the lup, cannot be kicked.
		if loan.ThresholdPrice.LessThan(snap.LUP) {
			continue
		}
		details, err := e.pool.GetLoan(ctx, loan.Borrower)
		if err != nil {
			e.log.Warn("failed to read loan", "borrower", loan.Borrower.Hex(), "error", err)
			continue
		}
		if calculator.WadToDecimal(details.Debt).LessThan(minDebt) {
			continue
		}
		if !Profitable(details.NeutralPrice, factor, marketPrice, snap.HPB) {
			e.log.Debug("loan not profitable to kick",
				"borrower", loan.Borrower.Hex(),
				"neutralPrice", details.NeutralPrice.String(),
				"marketPrice", marketPrice.String(),
				"hpb", snap.HPB.String())
			continue
		}
		out = append(out, model.KickInstruction{
			Borrower:        loan.Borrower,
			LiquidationBond: details.LiquidationBond,
		})
	}
	return out, nil
}

// Handle selects loans and kicks each of them, pausing between actions.
func (e *Engine) Handle(ctx context.Context, marketPrice decimal.Decimal) ([]Result, error) {
	instructions, err := e.Select(ctx, marketPrice)
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
		results = append(results, e.Kick(ctx, ins, marketPrice))
	}
	return results, nil
}

// Kick executes one instruction. Failures are logged and reported in the
// Result, never returned.
func (e *Engine) Kick(ctx context.Context, ins model.KickInstruction, marketPrice decimal.Decimal) Result {
	log := e.log.With("borrower", ins.Borrower.Hex(), "bond", calculator.WadToDecimal(ins.LiquidationBond).String())
	limit := calculator.PriceToIndex(marketPrice)
	res := Result{Borrower: ins.Borrower, Bond: ins.LiquidationBond}

	if e.dryRun {
		log.Info("DryRun - would kick loan", "limitIndex", limit)
		res.Outcome = recorder.OutcomeDryRun
		e.record(res, limit)
		return res
	}

	res.Outcome, res.Err = e.execute(ctx, log, ins, limit)
	e.record(res, limit)
	return res
}

func (e *Engine) execute(ctx context.Context, log *slog.Logger, ins model.KickInstruction, limit int64) (string, error) {
	balance, err := e.pool.QuoteBalance(ctx, e.signer)
	if err != nil {
		log.Error("failed to read quote balance", "error", err)
		return recorder.OutcomeFailed, err
	}
	if balance.Cmp(ins.LiquidationBond) < 0 {
		log.Warn("balance too low to kick loan", "balance", calculator.WadToDecimal(balance).String())
		return recorder.OutcomeInsufficient, nil
	}

	// The allowance is reset on every exit path once approval was attempted.
	defer func() {
		reset := func(ctx context.Context) error { return e.pool.ApproveQuote(ctx, big.NewInt(0)) }
		if err := e.txq.Submit(context.WithoutCancel(ctx), reset); err != nil && !errors.Is(err, txqueue.ErrNonceStalled) {
			log.Error("failed to reset bond approval", "error", err)
		}
	}()

	approval := calculator.ApplyMargin(ins.LiquidationBond, e.cfg.ApprovalMargin)
	log.Debug("approving liquidation bond", "approval", calculator.WadToDecimal(approval).String())
	if err := e.txq.Submit(ctx, func(ctx context.Context) error {
		return e.pool.ApproveQuote(ctx, approval)
	}); err != nil && !errors.Is(err, txqueue.ErrNonceStalled) {
		log.Error("failed to approve liquidation bond", "error", err)
		return recorder.OutcomeFailed, err
	}

	log.Info("sending kick transaction", "limitIndex", limit)
	err = e.txq.Submit(ctx, func(ctx context.Context) error {
		return e.pool.Kick(ctx, ins.Borrower, limit)
	})
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		log.Warn("kick sent but nonce did not advance, outcome unknown", "error", err)
		return recorder.OutcomeUnknown, err
	case err != nil:
		log.Error("failed to kick loan", "error", err)
		return recorder.OutcomeFailed, err
	}
	log.Info("kick transaction confirmed")
	return recorder.OutcomeSuccess, nil
}

func (e *Engine) record(res Result, limit int64) {
	metrics.KicksTotal.WithLabelValues(e.poolName, res.Outcome).Inc()
	evt := &recorder.KickEvent{
		Pool:       e.pool.Info().Address.Hex(),
		Borrower:   res.Borrower.Hex(),
		Bond:       calculator.WadToDecimal(res.Bond).String(),
		LimitIndex: limit,
		DryRun:     e.dryRun,
		Outcome:    res.Outcome,
	}
	if res.Err != nil {
		evt.Error = res.Err.Error()
	}
	if err := e.rec.RecordKick(evt); err != nil {
		e.log.Error("record kick", "error", err)
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
