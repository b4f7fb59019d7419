package reward

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/metrics"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/txqueue"

	"github.com/ethereum/go-ethereum/common"
)

// LPPool is the bucket surface needed to redeem reward LP.
type LPPool interface {
	Info() model.PoolInfo
	LenderLP(ctx context.Context, bucketIndex int64, lender common.Address) (*big.Int, error)
	Bucket(ctx context.Context, bucketIndex int64) (model.BucketStatus, error)
	LPToQuote(ctx context.Context, lp *big.Int, bucketIndex int64) (*big.Int, error)
	LPToCollateral(ctx context.Context, lp *big.Int, bucketIndex int64) (*big.Int, error)
	// WithdrawableQuote is the quote the lender can remove without reverting.
	WithdrawableQuote(ctx context.Context, bucketIndex int64, lender common.Address) (*big.Int, error)
	RemoveQuote(ctx context.Context, amount *big.Int, bucketIndex int64) error
	RemoveCollateral(ctx context.Context, amount *big.Int, bucketIndex int64) error
}

// Creditor receives redeemed rewards for later disposal.
type Creditor interface {
	AddCredit(action model.RewardAction, token common.Address, amount *big.Int) error
}

type LPCollectorParams struct {
	Pool     LPPool
	Queue    Submitter
	Tracker  Creditor
	Signer   common.Address
	RedeemAs model.RedeemAs
	// MinAmount is the redemption threshold in 18 decimals.
	MinAmount *big.Int
	// Action is nil when redeemed tokens are simply kept.
	Action   *model.RewardAction
	DryRun   bool
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// LPCollector redeems LP awarded to the signer by bucket takes, leaving the
// signer's own deposits in place.
type LPCollector struct {
	pool      LPPool
	txq       Submitter
	tracker   Creditor
	signer    common.Address
	redeemAs  model.RedeemAs
	minAmount *big.Int
	action    *model.RewardAction
	dryRun    bool
	rec       recorder.Recorder
	log       *slog.Logger
	poolName  string

	mu    sync.Mutex
	lpMap map[int64]*big.Int
}

func NewLPCollector(p LPCollectorParams) *LPCollector {
	if p.Recorder == nil {
		p.Recorder = recorder.NewNoopRecorder()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.MinAmount == nil {
		p.MinAmount = new(big.Int)
	}
	if p.RedeemAs == "" {
		p.RedeemAs = model.RedeemQuote
	}
	info := p.Pool.Info()
	return &LPCollector{
		pool:      p.Pool,
		txq:       p.Queue,
		tracker:   p.Tracker,
		signer:    p.Signer,
		redeemAs:  p.RedeemAs,
		minAmount: p.MinAmount,
		action:    p.Action,
		dryRun:    p.DryRun,
		rec:       p.Recorder,
		log:       p.Logger.With("pool", info.Name),
		poolName:  info.Name,
		lpMap:     make(map[int64]*big.Int),
	}
}

// Pool returns the address of the collected pool.
func (c *LPCollector) Pool() common.Address { return c.pool.Info().Address }

// HandleAward adds awarded LP to the bucket's pending reward.
func (c *LPCollector) HandleAward(award model.LPAward) {
	if award.LP == nil || award.LP.Sign() <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.lpMap[award.BucketIndex]; ok {
		cur.Add(cur, award.LP)
	} else {
		c.lpMap[award.BucketIndex] = new(big.Int).Set(award.LP)
	}
	c.log.Info("received LP reward", "bucketIndex", award.BucketIndex, "lp", award.LP.String(), "tx", award.TxHash.Hex())
}

// Pending returns the reward LP waiting in bucketIndex.
func (c *LPCollector) Pending(bucketIndex int64) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.lpMap[bucketIndex]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (c *LPCollector) subtract(bucketIndex int64, lp *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.lpMap[bucketIndex]
	if !ok {
		return
	}
	next := new(big.Int).Sub(cur, lp)
	if next.Sign() <= 0 {
		delete(c.lpMap, bucketIndex)
		return
	}
	c.lpMap[bucketIndex] = next
}

func (c *LPCollector) entries() map[int64]*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]*big.Int, len(c.lpMap))
	for k, v := range c.lpMap {
		if v.Sign() > 0 {
			out[k] = new(big.Int).Set(v)
		}
	}
	return out
}

// Collect redeems every bucket holding reward LP. Per-bucket failures are
// logged and leave the pending reward untouched.
func (c *LPCollector) Collect(ctx context.Context) error {
	pending := c.entries()
	indexes := make([]int64, 0, len(pending))
	for k := range pending {
		indexes = append(indexes, k)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, index := range indexes {
		if err := ctx.Err(); err != nil {
			return err
		}
		consumed, err := c.collectBucket(ctx, index, pending[index])
		if err != nil {
			c.log.Error("failed to collect LP reward", "bucketIndex", index, "redeemAs", string(c.redeemAs), "error", err)
			continue
		}
		if consumed.Sign() > 0 {
			c.subtract(index, consumed)
		}
	}
	return nil
}

// collectBucket redeems reward LP from one bucket and returns the LP consumed.
func (c *LPCollector) collectBucket(ctx context.Context, index int64, rewardLP *big.Int) (*big.Int, error) {
	lpBalance, err := c.pool.LenderLP(ctx, index, c.signer)
	if err != nil {
		return nil, err
	}
	rewardLP = calculator.MinBig(rewardLP, lpBalance)
	bucket, err := c.pool.Bucket(ctx, index)
	if err != nil {
		return nil, err
	}

	var (
		token  common.Address
		amount *big.Int
	)
	info := c.pool.Info()
	if c.redeemAs == model.RedeemCollateral {
		reward, err := c.pool.LPToCollateral(ctx, rewardLP, index)
		if err != nil {
			return nil, err
		}
		token, amount = info.Collateral, calculator.MinBig(reward, bucket.Collateral)
	} else {
		reward, err := c.pool.LPToQuote(ctx, rewardLP, index)
		if err != nil {
			return nil, err
		}
		withdrawable, err := c.pool.WithdrawableQuote(ctx, index, c.signer)
		if err != nil {
			return nil, err
		}
		token, amount = info.Quote, calculator.MinBig(reward, withdrawable)
	}
	if amount.Cmp(c.minAmount) <= 0 {
		c.log.Debug("LP reward below minimum", "bucketIndex", index, "amount", calculator.WadToDecimal(amount).String())
		return new(big.Int), nil
	}

	evt := &recorder.LPCollectEvent{
		Pool:        info.Address.Hex(),
		BucketIndex: index,
		RedeemAs:    string(c.redeemAs),
		Amount:      calculator.WadToDecimal(amount).String(),
		DryRun:      c.dryRun,
	}
	defer func() {
		metrics.LPCollectionsTotal.WithLabelValues(c.poolName, evt.Outcome).Inc()
		if err := c.rec.RecordLPCollect(evt); err != nil {
			c.log.Error("record LP collection", "error", err)
		}
	}()

	log := c.log.With("bucketIndex", index, "redeemAs", string(c.redeemAs), "amount", evt.Amount)
	if c.dryRun {
		log.Info("DryRun - would collect LP reward")
		evt.Outcome = recorder.OutcomeDryRun
		return new(big.Int), nil
	}

	log.Debug("collecting LP reward")
	err = c.txq.Submit(ctx, func(ctx context.Context) error {
		if c.redeemAs == model.RedeemCollateral {
			return c.pool.RemoveCollateral(ctx, amount, index)
		}
		return c.pool.RemoveQuote(ctx, amount, index)
	})
	switch {
	case errors.Is(err, txqueue.ErrNonceStalled):
		log.Warn("LP redemption sent but nonce did not advance", "error", err)
		evt.Outcome, evt.Error = recorder.OutcomeUnknown, err.Error()
	case err != nil:
		evt.Outcome, evt.Error = recorder.OutcomeFailed, err.Error()
		return nil, err
	default:
		evt.Outcome = recorder.OutcomeSuccess
	}
	log.Info("collected LP reward")

	if c.action != nil && c.tracker != nil {
		if err := c.tracker.AddCredit(*c.action, token, amount); err != nil {
			log.Error("failed to credit reward", "error", err)
		}
	}

	consumed, err := consumedLP(c.redeemAs, amount, bucket)
	if err != nil {
		return nil, err
	}
	evt.LPConsumed = calculator.WadToDecimal(consumed).String()
	return consumed, nil
}

// consumedLP converts a redeemed amount back into bucket LP. Quote redeems
// amount/rate; collateral redeems amount*price/rate.
func consumedLP(as model.RedeemAs, amount *big.Int, bucket model.BucketStatus) (*big.Int, error) {
	if as == model.RedeemCollateral {
		value, err := calculator.Wmul(amount, bucket.Price)
		if err != nil {
			return nil, err
		}
		return calculator.Wdiv(value, bucket.ExchangeRate)
	}
	return calculator.Wdiv(amount, bucket.ExchangeRate)
}
