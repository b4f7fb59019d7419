// Package reward accumulates passively earned tokens and disposes of them in
// batches, either by transferring them away or by swapping them.
package reward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/config"
	"PoolKeeper/internal/metrics"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/txqueue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNonPositiveAmount = errors.New("reward: credit amount must be positive")
	ErrNoRoute           = errors.New("reward: no swap route")
	ErrUnsupportedAction = errors.New("reward: unsupported reward action")
)

// Tokens reads and moves ERC20 balances held by the signer.
type Tokens interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// Swapper exchanges one token for another on behalf of the signer.
type Swapper interface {
	Swap(ctx context.Context, req model.SwapRequest) error
}

type Submitter interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
}

type Params struct {
	Tokens  Tokens
	Swapper Swapper
	Queue   Submitter
	Signer  common.Address
	ChainID int64
	// RouteOverride is used for exchange targets missing from the chain table.
	RouteOverride common.Address
	Policy        string
	Delay         time.Duration
	Clock         clockwork.Clock
	Recorder      recorder.Recorder
	Logger        *slog.Logger
}

// Tracker holds reward credits keyed by (disposal action, token). Every
// stored balance is strictly positive.
type Tracker struct {
	tokens   Tokens
	swapper  Swapper
	txq      Submitter
	signer   common.Address
	chainID  int64
	override common.Address
	policy   string
	delay    time.Duration
	clock    clockwork.Clock
	rec      recorder.Recorder
	log      *slog.Logger

	mu      sync.Mutex
	credits map[model.CreditKey]*big.Int

	drainMu sync.Mutex
}

func NewTracker(p Params) *Tracker {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Recorder == nil {
		p.Recorder = recorder.NewNoopRecorder()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Policy == "" {
		p.Policy = config.DrainAbort
	}
	return &Tracker{
		tokens:   p.Tokens,
		swapper:  p.Swapper,
		txq:      p.Queue,
		signer:   p.Signer,
		chainID:  p.ChainID,
		override: p.RouteOverride,
		policy:   p.Policy,
		delay:    p.Delay,
		clock:    p.Clock,
		rec:      p.Recorder,
		log:      p.Logger,
		credits:  make(map[model.CreditKey]*big.Int),
	}
}

// AddCredit merges amount (18 decimals) into the entry for (action, token).
func (t *Tracker) AddCredit(action model.RewardAction, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	key := model.CreditKey{Action: action, Token: token}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.credits[key]; ok {
		cur.Add(cur, amount)
	} else {
		t.credits[key] = new(big.Int).Set(amount)
	}
	metrics.PendingCredits.Set(float64(len(t.credits)))
	return nil
}

// SubtractCredit removes amount from the entry, deleting it once the
// balance is no longer positive.
func (t *Tracker) SubtractCredit(action model.RewardAction, token common.Address, amount *big.Int) {
	if amount == nil {
		return
	}
	key := model.CreditKey{Action: action, Token: token}

	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.credits[key]
	if !ok {
		return
	}
	next := new(big.Int).Sub(cur, amount)
	if next.Sign() <= 0 {
		delete(t.credits, key)
	} else {
		t.credits[key] = next
	}
	metrics.PendingCredits.Set(float64(len(t.credits)))
}

// Balance returns the credit for (action, token) and whether it exists.
func (t *Tracker) Balance(action model.RewardAction, token common.Address) (*big.Int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.credits[model.CreditKey{Action: action, Token: token}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(cur), true
}

// Len reports the number of non-empty entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.credits)
}

// Snapshot returns a copy of the positive entries in a fixed order: by token,
// then by every field of the disposal action.
func (t *Tracker) Snapshot() []model.Credit {
	t.mu.Lock()
	out := make([]model.Credit, 0, len(t.credits))
	for k, v := range t.credits {
		if v.Sign() > 0 {
			out = append(out, model.Credit{CreditKey: k, Amount: new(big.Int).Set(v)})
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Token.Bytes(), out[j].Token.Bytes()); c != 0 {
			return c < 0
		}
		return actionLess(out[i].Action, out[j].Action)
	})
	return out
}

func actionLess(a, b model.RewardAction) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if c := bytes.Compare(a.To.Bytes(), b.To.Bytes()); c != 0 {
		return c < 0
	}
	if a.TargetToken != b.TargetToken {
		return a.TargetToken < b.TargetToken
	}
	if a.Slippage != b.Slippage {
		return a.Slippage < b.Slippage
	}
	if a.FeeTier != b.FeeTier {
		return a.FeeTier < b.FeeTier
	}
	return !a.UseAlternateRoute && b.UseAlternateRoute
}

// DrainAll disposes of every positive entry. Under the abort policy the
// first failure ends the pass; under continue, failures are joined and
// returned after every entry was attempted. Failed entries stay intact for
// the next pass.
func (t *Tracker) DrainAll(ctx context.Context) error {
	t.drainMu.Lock()
	defer t.drainMu.Unlock()

	entries := t.Snapshot()
	if len(entries) == 0 {
		return nil
	}
	t.log.Info("draining reward credits", "entries", len(entries), "policy", t.policy)

	var errs []error
	sent := 0
	for _, c := range entries {
		if c.Action.Kind != model.ActionTransfer && c.Action.Kind != model.ActionExchange {
			t.log.Warn("skipping reward credit", "token", c.Token.Hex(), "action", string(c.Action.Kind), "error", ErrUnsupportedAction)
			continue
		}
		if sent > 0 {
			if err := t.sleep(ctx); err != nil {
				return err
			}
		}
		sent++

		if err := t.dispose(ctx, c); err != nil {
			if t.policy != config.DrainContinue {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) dispose(ctx context.Context, c model.Credit) error {
	var (
		target string
		err    error
	)
	switch c.Action.Kind {
	case model.ActionTransfer:
		target = c.Action.To.Hex()
		err = t.transfer(ctx, c)
	case model.ActionExchange:
		target = c.Action.TargetToken
		err = t.exchange(ctx, c)
	}

	outcome := recorder.OutcomeSuccess
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		outcome = recorder.OutcomeUnknown
	case err != nil:
		outcome = recorder.OutcomeFailed
	}
	metrics.DisposalsTotal.WithLabelValues(string(c.Action.Kind), outcome).Inc()
	evt := &recorder.DisposalEvent{
		Action:  string(c.Action.Kind),
		Token:   c.Token.Hex(),
		Target:  target,
		Amount:  calculator.WadToDecimal(c.Amount).String(),
		Outcome: outcome,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	if rerr := t.rec.RecordDisposal(evt); rerr != nil {
		t.log.Error("record disposal", "error", rerr)
	}

	// A stalled nonce means the call returned; its transaction was sent.
	if errors.Is(err, txqueue.ErrNonceStalled) {
		t.log.Warn("reward disposal sent but nonce did not advance", "token", c.Token.Hex(), "error", err)
		t.SubtractCredit(c.Action, c.Token, c.Amount)
		return nil
	}
	return err
}

func (t *Tracker) transfer(ctx context.Context, c model.Credit) error {
	log := t.log.With("token", c.Token.Hex(), "to", c.Action.To.Hex(), "amount", calculator.WadToDecimal(c.Amount).String())

	decimals, err := t.tokens.Decimals(ctx, c.Token)
	if err != nil {
		log.Error("failed to read token decimals", "error", err)
		return fmt.Errorf("decimals of %s: %w", c.Token.Hex(), err)
	}
	amount := calculator.ChangeDecimals(c.Amount, calculator.WadDecimals, decimals)
	log.Debug("sending reward token", "nativeAmount", amount.String(), "decimals", decimals)

	err = t.txq.Submit(ctx, func(ctx context.Context) error {
		return t.tokens.Transfer(ctx, c.Token, c.Action.To, amount)
	})
	if err != nil && !errors.Is(err, txqueue.ErrNonceStalled) {
		log.Error("failed to transfer reward token", "error", err)
		return fmt.Errorf("transfer %s: %w", c.Token.Hex(), err)
	}
	if err == nil {
		// The accumulator is in 18 decimals, never the converted amount.
		t.SubtractCredit(c.Action, c.Token, c.Amount)
		log.Info("transferred reward token")
	}
	return err
}

func (t *Tracker) exchange(ctx context.Context, c model.Credit) error {
	target := c.Action.TargetToken
	if target == "" {
		target = "weth"
	}
	log := t.log.With("token", c.Token.Hex(), "targetToken", target, "amount", calculator.WadToDecimal(c.Amount).String())

	out, err := ResolveRoute(t.chainID, target, t.override)
	if err != nil {
		log.Error("failed to resolve swap route", "error", err)
		return err
	}
	slippage := c.Action.Slippage
	if slippage <= 0 {
		slippage = 1
	}
	req := model.SwapRequest{
		TokenIn:           c.Token,
		TokenOut:          out,
		AmountIn:          new(big.Int).Set(c.Amount),
		Recipient:         t.signer,
		Slippage:          slippage,
		FeeTier:           c.Action.FeeTier,
		UseAlternateRoute: c.Action.UseAlternateRoute,
	}
	err = t.txq.Submit(ctx, func(ctx context.Context) error {
		return t.swapper.Swap(ctx, req)
	})
	if err != nil && !errors.Is(err, txqueue.ErrNonceStalled) {
		log.Error("failed to swap reward token", "error", err)
		return fmt.Errorf("swap %s: %w", c.Token.Hex(), err)
	}
	if err == nil {
		t.SubtractCredit(c.Action, c.Token, c.Amount)
		log.Info("swapped reward token")
	}
	return err
}

func (t *Tracker) sleep(ctx context.Context) error {
	if t.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(t.delay):
		return nil
	}
}
