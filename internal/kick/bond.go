package kick

import (
	"context"
	"errors"
	"log/slog"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/txqueue"

	"github.com/ethereum/go-ethereum/common"
)

// BondPool is the pool surface needed to reclaim kicker bonds.
type BondPool interface {
	Info() model.PoolInfo
	KickerInfo(ctx context.Context, kicker common.Address) (model.KickerInfo, error)
	WithdrawBonds(ctx context.Context, recipient common.Address) error
}

// BondCollector withdraws claimable kicker bonds once none are locked.
type BondCollector struct {
	pool   BondPool
	txq    Submitter
	signer common.Address
	dryRun bool
	rec    recorder.Recorder
	log    *slog.Logger
}

func NewBondCollector(pool BondPool, txq Submitter, signer common.Address, dryRun bool, rec recorder.Recorder, logger *slog.Logger) *BondCollector {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BondCollector{
		pool:   pool,
		txq:    txq,
		signer: signer,
		dryRun: dryRun,
		rec:    rec,
		log:    logger.With("pool", pool.Info().Name),
	}
}

// Collect withdraws bonds when locked is zero and claimable is positive.
// It returns false when there was nothing to withdraw.
func (c *BondCollector) Collect(ctx context.Context) (bool, error) {
	info, err := c.pool.KickerInfo(ctx, c.signer)
	if err != nil {
		return false, err
	}
	if info.Locked == nil || info.Claimable == nil {
		return false, nil
	}
	if info.Locked.Sign() != 0 || info.Claimable.Sign() <= 0 {
		return false, nil
	}

	claimable := calculator.WadToDecimal(info.Claimable).String()
	evt := &recorder.BondWithdrawEvent{
		Pool:      c.pool.Info().Address.Hex(),
		Claimable: claimable,
		DryRun:    c.dryRun,
	}
	defer func() {
		if err := c.rec.RecordBondWithdraw(evt); err != nil {
			c.log.Error("record bond withdrawal", "error", err)
		}
	}()

	if c.dryRun {
		c.log.Info("DryRun - would withdraw kicker bonds", "claimable", claimable)
		evt.Outcome = recorder.OutcomeDryRun
		return true, nil
	}

	c.log.Info("withdrawing kicker bonds", "claimable", claimable)
	err = c.txq.Submit(ctx, func(ctx context.Context) error {
		return c.pool.WithdrawBonds(ctx, c.signer)
	})
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		c.log.Warn("bond withdrawal sent but nonce did not advance", "error", err)
		evt.Outcome, evt.Error = recorder.OutcomeUnknown, err.Error()
		return true, nil
	case err != nil:
		evt.Outcome, evt.Error = recorder.OutcomeFailed, err.Error()
		return false, err
	}
	evt.Outcome = recorder.OutcomeSuccess
	return true, nil
}
