// Package txqueue serializes mutating calls made with one signing key.
//
// Calls run strictly one at a time in submission order. After each call the
// queue waits until the signer's transaction count has advanced before the
// next call may start, so two transactions never race for the same nonce.
package txqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"PoolKeeper/internal/metrics"

	"github.com/jonboulle/clockwork"
)

// ErrNonceStalled is returned when the signer's transaction count did not
// advance within the wait bound. The submitted transaction may still land.
var ErrNonceStalled = errors.New("txqueue: nonce did not advance")

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultMaxPolls     = 20
)

// Counter reports how many transactions the signer has sent.
type Counter interface {
	TransactionCount(ctx context.Context) (uint64, error)
}

// Option customises a Queue.
type Option func(*Queue)

// WithClock overrides the clock used between nonce polls.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithPollInterval sets the delay between nonce polls.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// WithMaxPolls bounds how many times the nonce is polled per call.
func WithMaxPolls(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxPolls = n
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// Queue is a FIFO of pending calls drained by at most one worker goroutine.
type Queue struct {
	counter  Counter
	clock    clockwork.Clock
	interval time.Duration
	maxPolls int
	log      *slog.Logger

	mu      sync.Mutex
	pending []*task
	running bool
}

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) (any, error)
	done chan outcome
}

type outcome struct {
	value any
	err   error
}

// New returns a queue for the signer behind counter.
func New(counter Counter, opts ...Option) *Queue {
	q := &Queue{
		counter:  counter,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
		maxPolls: DefaultMaxPolls,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit runs fn after every previously submitted call has finished and
// returns fn's error. A failing call does not affect the calls queued behind it.
func (q *Queue) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := q.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// Do is Submit for calls that produce a value. On ErrNonceStalled the value
// is still returned.
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := q.submit(ctx, func(ctx context.Context) (any, error) {
		res, err := fn(ctx)
		return res, err
	})
	res, _ := v.(T)
	return res, err
}

// Len reports how many calls are waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	t := &task{ctx: ctx, fn: fn, done: make(chan outcome, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	metrics.TxQueueDepth.Set(float64(len(q.pending)))
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	select {
	case o := <-t.done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain is the single worker. It exits once the queue is empty; the next
// submit starts a new one.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		metrics.TxQueueDepth.Set(float64(len(q.pending)))
		q.mu.Unlock()

		t.done <- q.run(t)
	}
}

func (q *Queue) run(t *task) (o outcome) {
	if err := t.ctx.Err(); err != nil {
		return outcome{err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("tx callback panicked", "panic", r)
			o = outcome{err: fmt.Errorf("txqueue: callback panicked: %v", r)}
		}
	}()

	before, err := q.counter.TransactionCount(t.ctx)
	if err != nil {
		return outcome{err: fmt.Errorf("read transaction count: %w", err)}
	}
	value, err := t.fn(t.ctx)
	if err != nil {
		return outcome{value: value, err: err}
	}
	return outcome{value: value, err: q.awaitNonce(t.ctx, before)}
}

func (q *Queue) awaitNonce(ctx context.Context, before uint64) error {
	for i := 0; i < q.maxPolls; i++ {
		n, err := q.counter.TransactionCount(ctx)
		if err != nil {
			q.log.Debug("transaction count poll failed", "error", err)
		} else if n > before {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.clock.After(q.interval):
		}
	}
	metrics.NonceStallsTotal.Inc()
	q.log.Warn("nonce did not advance, outcome unknown", "nonce", before, "polls", q.maxPolls)
	return fmt.Errorf("%w after %d polls", ErrNonceStalled, q.maxPolls)
}
