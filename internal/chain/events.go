package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultLogPollInterval is used when the endpoint cannot push logs.
const DefaultLogPollInterval = 12 * time.Second

var lpAwardedTopic = poolABI.Events["BucketTakeLPAwarded"].ID

// LogBackend is the RPC surface needed to follow pool events.
type LogBackend interface {
	ethereum.LogFilterer
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// LPAwardWatcher follows BucketTakeLPAwarded events of one pool and reports
// the LP awarded to account, as taker or kicker.
type LPAwardWatcher struct {
	backend  LogBackend
	pool     common.Address
	account  common.Address
	interval time.Duration
	log      *slog.Logger
}

func NewLPAwardWatcher(backend LogBackend, pool, account common.Address, interval time.Duration, logger *slog.Logger) *LPAwardWatcher {
	if interval <= 0 {
		interval = DefaultLogPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LPAwardWatcher{
		backend:  backend,
		pool:     pool,
		account:  account,
		interval: interval,
		log:      logger.With("pool", pool.Hex()),
	}
}

func (w *LPAwardWatcher) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{w.pool},
		Topics:    [][]common.Hash{{lpAwardedTopic}},
	}
}

// Run delivers awards to sink until ctx is done. It subscribes when the
// endpoint supports it and polls otherwise. When the subscription drops,
// polling resumes after the last block the subscription covered.
func (w *LPAwardWatcher) Run(ctx context.Context, sink func(model.LPAward)) error {
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("read head: %w", err)
	}
	lastSeen := new(big.Int).Set(head.Number)

	logs := make(chan types.Log, 64)
	sub, err := w.backend.SubscribeFilterLogs(ctx, w.query(), logs)
	if err != nil {
		w.log.Info("log subscription unavailable, polling", "interval", w.interval, "error", err)
		return w.poll(ctx, next(lastSeen), sink)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			w.log.Warn("log subscription dropped, polling", "from", next(lastSeen).String(), "error", err)
			return w.poll(ctx, next(lastSeen), sink)
		case lg := <-logs:
			if n := new(big.Int).SetUint64(lg.BlockNumber); n.Cmp(lastSeen) > 0 {
				lastSeen = n
			}
			w.deliver(ctx, lg, sink)
		}
	}
}

// poll queries logs from block from onwards on every tick.
func (w *LPAwardWatcher) poll(ctx context.Context, from *big.Int, sink func(model.LPAward)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		head, err := w.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			w.log.Warn("failed to read head", "error", err)
			continue
		}
		if head.Number.Cmp(from) < 0 {
			continue
		}
		q := w.query()
		q.FromBlock, q.ToBlock = from, head.Number
		logs, err := w.backend.FilterLogs(ctx, q)
		if err != nil {
			w.log.Warn("failed to filter logs", "from", from.String(), "to", head.Number.String(), "error", err)
			continue
		}
		for _, lg := range logs {
			w.deliver(ctx, lg, sink)
		}
		from = next(head.Number)
	}
}

func next(block *big.Int) *big.Int {
	return new(big.Int).Add(block, big.NewInt(1))
}

func (w *LPAwardWatcher) deliver(ctx context.Context, lg types.Log, sink func(model.LPAward)) {
	if lg.Removed {
		return
	}
	award, ok, err := w.Decode(ctx, lg)
	if err != nil {
		w.log.Error("failed to decode LP award", "tx", lg.TxHash.Hex(), "error", err)
		return
	}
	if ok {
		sink(award)
	}
}

// Decode extracts the award owed to the watched account. ok is false when
// the event awards the account nothing.
func (w *LPAwardWatcher) Decode(ctx context.Context, lg types.Log) (model.LPAward, bool, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != lpAwardedTopic {
		return model.LPAward{}, false, errors.New("not a BucketTakeLPAwarded log")
	}
	taker := common.BytesToAddress(lg.Topics[1].Bytes())
	kicker := common.BytesToAddress(lg.Topics[2].Bytes())
	if taker != w.account && kicker != w.account {
		return model.LPAward{}, false, nil
	}

	vals, err := poolABI.Unpack("BucketTakeLPAwarded", lg.Data)
	if err != nil {
		return model.LPAward{}, false, err
	}
	amounts, err := bigsAt(vals, 2)
	if err != nil {
		return model.LPAward{}, false, err
	}
	lp := new(big.Int)
	if taker == w.account {
		lp.Add(lp, amounts[0])
	}
	if kicker == w.account {
		lp.Add(lp, amounts[1])
	}
	if lp.Sign() == 0 {
		return model.LPAward{}, false, nil
	}

	index, err := w.bucketIndex(ctx, lg.TxHash)
	if err != nil {
		return model.LPAward{}, false, err
	}
	return model.LPAward{Pool: w.pool, BucketIndex: index, LP: lp, TxHash: lg.TxHash}, true, nil
}

// bucketIndex recovers the bucket from the bucketTake call that emitted the award.
func (w *LPAwardWatcher) bucketIndex(ctx context.Context, hash common.Hash) (int64, error) {
	tx, _, err := w.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	data := tx.Data()
	if len(data) < 4 {
		return 0, fmt.Errorf("tx %s has no calldata", hash.Hex())
	}
	method, err := poolABI.MethodById(data[:4])
	if err != nil {
		return 0, fmt.Errorf("tx %s: %w", hash.Hex(), err)
	}
	if method.Name != "bucketTake" {
		return 0, fmt.Errorf("cannot get bucket index from %s call", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return 0, err
	}
	index, err := bigAt(args, 2)
	if err != nil {
		return 0, err
	}
	return index.Int64(), nil
}
