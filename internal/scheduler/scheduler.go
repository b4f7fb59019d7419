package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"PoolKeeper/internal/kick"
	"PoolKeeper/internal/metrics"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/notifier"
	"PoolKeeper/internal/price"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/take"
)

// PriceResolver resolves the market price for a pool.
type PriceResolver interface {
	Resolve(ctx context.Context, pool common.Address, origin price.Origin) (decimal.Decimal, error)
}

type Kicker interface {
	Handle(ctx context.Context, marketPrice decimal.Decimal) ([]kick.Result, error)
}

type Taker interface {
	Handle(ctx context.Context) ([]take.Result, error)
}

type LPCollector interface {
	Collect(ctx context.Context) error
}

type BondCollector interface {
	Collect(ctx context.Context) (bool, error)
}

// Drainer disposes accumulated reward credits.
type Drainer interface {
	DrainAll(ctx context.Context) error
	Len() int
}

// PoolRunner bundles the handlers configured for one pool. Nil handlers are skipped.
type PoolRunner struct {
	Info      model.PoolInfo
	Origin    price.Origin
	Kick      Kicker
	Take      Taker
	Collector LPCollector
	Bonds     BondCollector

	running atomic.Bool

	mu        sync.Mutex
	lastPrice decimal.NullDecimal
	lastErr   string
}

func (r *PoolRunner) setResult(p decimal.NullDecimal, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Valid {
		r.lastPrice = p
	}
	r.lastErr = ""
	if err != nil {
		r.lastErr = err.Error()
	}
}

func (r *PoolRunner) line() notifier.PoolLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := notifier.PoolLine{
		Name:      r.Info.Name,
		Address:   r.Info.Address.Hex(),
		Kick:      r.Kick != nil,
		Take:      r.Take != nil,
		CollectLP: r.Collector != nil,
		Running:   r.running.Load(),
		LastError: r.lastErr,
	}
	if r.lastPrice.Valid {
		l.LastPrice = r.lastPrice.Decimal.String()
	}
	return l
}

// Params configures a Scheduler.
type Params struct {
	Resolver    PriceResolver
	Pools       []*PoolRunner
	Rewards     Drainer
	Notifier    notifier.Notifier
	Recorder    recorder.Recorder
	Interval    time.Duration
	CollectSpec string
	DrainSpec   string
	DryRun      bool
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Scheduler drives the keeper loop and the maintenance jobs.
type Scheduler struct {
	Cron *cron.Cron

	resolver    PriceResolver
	pools       []*PoolRunner
	rewards     Drainer
	notifier    notifier.Notifier
	recorder    recorder.Recorder
	interval    time.Duration
	collectSpec string
	drainSpec   string
	dryRun      bool
	clock       clockwork.Clock
	log         *slog.Logger

	ctx     context.Context
	wg      sync.WaitGroup
	started time.Time
	ticks   atomic.Int64
	skipped atomic.Int64
	drainMu sync.Mutex
}

// New creates a scheduler. Jobs run with ctx.
func New(ctx context.Context, p Params) *Scheduler {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Notifier == nil {
		p.Notifier = notifier.Noop{}
	}
	if p.Recorder == nil {
		p.Recorder = recorder.NewNoopRecorder()
	}
	if p.Interval <= 0 {
		p.Interval = 15 * time.Second
	}
	log := p.Logger.With("component", "scheduler")
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{log})),
		resolver:    p.Resolver,
		pools:       p.Pools,
		rewards:     p.Rewards,
		notifier:    p.Notifier,
		recorder:    p.Recorder,
		interval:    p.Interval,
		collectSpec: p.CollectSpec,
		drainSpec:   p.DrainSpec,
		dryRun:      p.DryRun,
		clock:       p.Clock,
		log:         log,
		ctx:         ctx,
		started:     p.Clock.Now(),
	}
}

// RegisterAll registers the keeper tick and the maintenance jobs.
func (s *Scheduler) RegisterAll() error {
	skip := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log}))

	if _, err := s.Cron.AddFunc("@every "+s.interval.String(), func() { s.Tick(s.ctx) }); err != nil {
		return fmt.Errorf("register keeper tick: %w", err)
	}
	s.log.Info("registered keeper tick", "interval", s.interval)

	if s.collectSpec != "" && s.hasCollectors() {
		if _, err := s.Cron.AddJob(s.collectSpec, skip.Then(cron.FuncJob(func() { s.Collect(s.ctx) }))); err != nil {
			return fmt.Errorf("register collect job: %w", err)
		}
		s.log.Info("registered collect job", "spec", s.collectSpec)
	}

	if s.drainSpec != "" && s.rewards != nil {
		if _, err := s.Cron.AddJob(s.drainSpec, skip.Then(cron.FuncJob(func() { _ = s.Drain(s.ctx) }))); err != nil {
			return fmt.Errorf("register drain job: %w", err)
		}
		s.log.Info("registered reward drain job", "spec", s.drainSpec)
	}
	return nil
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", "pools", len(s.pools))
}

// Stop stops scheduling and waits for running jobs and pool evaluations.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Wait()
	s.log.Info("scheduler stopped")
}

// Wait blocks until every dispatched pool evaluation has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tick dispatches one evaluation per pool without waiting for them.
// A pool still busy with the previous tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	s.ticks.Add(1)
	for _, r := range s.pools {
		if !r.running.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			s.log.Debug("pool still evaluating, skipping tick", "pool", r.Info.Name)
			continue
		}
		s.wg.Add(1)
		go func(r *PoolRunner) {
			defer s.wg.Done()
			defer r.running.Store(false)
			s.evaluate(ctx, r)
		}(r)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, r *PoolRunner) {
	log := s.log.With("pool", r.Info.Name, "run", uuid.NewString())
	start := s.clock.Now()
	status := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			log.Error("pool evaluation panicked", "panic", rec, "stack", string(debug.Stack()))
			r.setResult(decimal.NullDecimal{}, fmt.Errorf("panic: %v", rec))
		}
		metrics.PoolEvaluationsTotal.WithLabelValues(r.Info.Name, status).Inc()
		metrics.PoolEvaluationDuration.WithLabelValues(r.Info.Name).Observe(s.clock.Since(start).Seconds())
	}()

	var (
		actions  []notifier.ActionLine
		resolved decimal.NullDecimal
		evalErr  error
	)

	if r.Kick != nil || r.Origin.Source != "" {
		p, err := s.resolver.Resolve(ctx, r.Info.Address, r.Origin)
		switch {
		case isConfigError(err):
			status = "error"
			log.Error("price configuration is invalid, skipping pool", "error", err)
			r.setResult(decimal.NullDecimal{}, fmt.Errorf("resolve price: %w", err))
			return
		case err != nil:
			status = "error"
			evalErr = fmt.Errorf("resolve price: %w", err)
			log.Error("price resolution failed, skipping kicks", "error", err)
		default:
			resolved = decimal.NewNullDecimal(p)
			log.Debug("resolved market price", "price", p)
		}
	}

	if r.Kick != nil && resolved.Valid {
		results, err := r.Kick.Handle(ctx, resolved.Decimal)
		if err != nil {
			status = "error"
			evalErr = fmt.Errorf("kick: %w", err)
			log.Error("kick handling failed", "error", err)
		}
		for _, res := range results {
			actions = append(actions, actionLine("kick", res.Borrower.Hex(), res.Outcome, res.Err))
		}
	}

	if r.Take != nil {
		results, err := r.Take.Handle(ctx)
		if err != nil {
			status = "error"
			evalErr = fmt.Errorf("take: %w", err)
			log.Error("take handling failed", "error", err)
		}
		for _, res := range results {
			actions = append(actions, actionLine("take", res.Borrower.Hex(), res.Outcome, res.Err))
		}
	}

	r.setResult(resolved, evalErr)
	log.Debug("pool evaluation finished", "status", status, "actions", len(actions), "took", s.clock.Since(start))

	if msg := notifier.FormatActions(r.Info.Name, reportable(actions)); msg != "" {
		s.trySend(ctx, msg)
	}
}

// Collect redeems LP rewards and withdraws claimable bonds for every pool.
func (s *Scheduler) Collect(ctx context.Context) {
	for _, r := range s.pools {
		log := s.log.With("pool", r.Info.Name)
		if r.Collector != nil {
			if err := r.Collector.Collect(ctx); err != nil {
				log.Error("LP reward collection failed", "error", err)
			}
		}
		if r.Bonds != nil {
			if _, err := r.Bonds.Collect(ctx); err != nil {
				log.Error("bond collection failed", "error", err)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Drain disposes all pending reward credits. Concurrent calls are serialized.
func (s *Scheduler) Drain(ctx context.Context) error {
	if s.rewards == nil {
		return nil
	}
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	before := s.rewards.Len()
	if before == 0 {
		return nil
	}
	s.log.Info("draining reward credits", "pending", before)
	err := s.rewards.DrainAll(ctx)
	if err != nil {
		s.log.Error("reward drain failed", "error", err, "remaining", s.rewards.Len())
		return err
	}
	s.log.Info("reward drain finished", "remaining", s.rewards.Len())
	return nil
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		return notifier.FormatStatus(s.Status())
	case "/pools":
		lines := make([]notifier.PoolLine, 0, len(s.pools))
		for _, r := range s.pools {
			lines = append(lines, r.line())
		}
		return notifier.FormatPools(lines)
	case "/drain":
		if s.rewards == nil {
			return "Reward tracking is not configured."
		}
		go func() {
			err := s.Drain(s.ctx)
			s.trySend(s.ctx, notifier.FormatDrain(s.rewards.Len(), err))
		}()
		return fmt.Sprintf("Draining %d reward credits...", s.rewards.Len())
	default:
		return notifier.FormatHelp()
	}
}

// Status summarizes the keeper since start.
func (s *Scheduler) Status() notifier.StatusReport {
	report := notifier.StatusReport{
		Started:      s.started,
		Now:          s.clock.Now(),
		DryRun:       s.dryRun,
		Ticks:        s.ticks.Load(),
		SkippedTicks: s.skipped.Load(),
	}
	if s.rewards != nil {
		report.PendingCredits = s.rewards.Len()
	}
	counts, err := s.recorder.CountSince(s.started)
	if err != nil {
		s.log.Warn("journal counts unavailable", "error", err)
	}
	report.Counts = counts
	return report
}

func (s *Scheduler) hasCollectors() bool {
	for _, r := range s.pools {
		if r.Collector != nil || r.Bonds != nil {
			return true
		}
	}
	return false
}

func (s *Scheduler) trySend(ctx context.Context, msg string) {
	if err := s.notifier.SendWithRetry(ctx, msg, 3); err != nil {
		s.log.Error("failed to send notification", "error", err)
	}
}

// isConfigError reports whether a price error comes from the pool's price
// configuration rather than from a failing source.
func isConfigError(err error) bool {
	var src *price.UnknownSourceError
	var ref *price.UnknownReferenceError
	return errors.As(err, &src) || errors.As(err, &ref)
}

func actionLine(kind, borrower, outcome string, err error) notifier.ActionLine {
	l := notifier.ActionLine{Kind: kind, Borrower: borrower, Outcome: outcome}
	if err != nil {
		l.Err = err.Error()
	}
	return l
}

// reportable drops dry-run and skipped attempts.
func reportable(lines []notifier.ActionLine) []notifier.ActionLine {
	var out []notifier.ActionLine
	for _, l := range lines {
		if l.Outcome == recorder.OutcomeDryRun || l.Outcome == recorder.OutcomeSkipped {
			continue
		}
		out = append(out, l)
	}
	return out
}

type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
