// Package scheduler drives the two background cadences of the sync engine:
// cron-expression pull syncs and adaptive, jittered watch-channel
// maintenance with a re-armed single-shot timer.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/notluquis/bioalergia-sub006/internal/runs"
)

// SyncRunner starts one synchronization run. Implemented by the syncer
// engine.
type SyncRunner interface {
	RunSync(ctx context.Context, scope runs.Scope, trigger runs.TriggerSource, triggerUser string) (*runs.SyncRun, error)
}

// Maintainer performs one channel maintenance pass and exposes the soonest
// expiry the next delay derives from. Implemented by the channel manager.
type Maintainer interface {
	SetupAll(ctx context.Context) error
	RenewExpiring(ctx context.Context) error
	SoonestExpiry(ctx context.Context) (*time.Time, error)
}

// Config holds the schedule settings.
type Config struct {
	// CronExpressions trigger pull syncs on fixed calendar expressions.
	CronExpressions []string

	// Location is the timezone the cron expressions are evaluated in.
	Location *time.Location

	// Units are the document unit types each scheduled sync covers.
	Units []string
}

// Scheduler owns the process's schedule for its lifetime; there is no
// external cancellation API beyond stopping it with the process.
type Scheduler struct {
	cfg    Config
	runner SyncRunner
	maint  Maintainer

	cron *cron.Cron

	// syncInFlight prevents overlapping pull-sync runs for the scope; a
	// flag, not a lock manager, since there is one scheduler instance.
	syncInFlight  atomic.Bool
	maintInFlight atomic.Bool

	mu     sync.Mutex
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc

	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// New creates a scheduler for the given engine and channel manager.
func New(cfg Config, runner SyncRunner, maint Maintainer) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		maint:  maint,
		now:    time.Now,
		jitter: func(max time.Duration) time.Duration {
			//nolint:gosec // G404: non-cryptographic randomness is fine for timer jitter
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
}

// Start registers the cron entries and arms the first maintenance timer.
// It returns immediately; background work stops when Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithLocation(s.cfg.Location))
	for _, expr := range s.cfg.CronExpressions {
		if _, err := s.cron.AddFunc(expr, func() { s.triggerSync(runs.TriggerScheduled) }); err != nil {
			return err
		}
	}
	s.cron.Start()

	slog.Info("Scheduler started",
		"cron_expressions", s.cfg.CronExpressions,
		"timezone", s.cfg.Location.String())

	// Run the first maintenance pass immediately; it arms the timer chain.
	// Without a maintainer there are no channels to keep alive and the
	// timer chain never starts.
	if s.maint != nil {
		go s.runMaintenance()
	}
	return nil
}

// Stop halts the cron entries and clears the maintenance timer.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	slog.Info("Scheduler stopped")
}

// triggerSync starts a pull sync unless one is already running for the
// scope.
func (s *Scheduler) triggerSync(trigger runs.TriggerSource) {
	if !s.syncInFlight.CompareAndSwap(false, true) {
		slog.Warn("Skipping sync trigger, previous run still in progress", "trigger", trigger)
		return
	}
	defer s.syncInFlight.Store(false)

	scope := runs.Scope{
		Period: s.now().In(s.cfg.Location).Format("200601"),
		Units:  s.cfg.Units,
	}
	if _, err := s.runner.RunSync(s.ctx, scope, trigger, ""); err != nil {
		// Scheduled runs surface outcomes only through the run history;
		// this covers failures before a run row existed.
		slog.Error("Scheduled sync could not be tracked", "error", err)
	}
}

// runMaintenance performs one channel maintenance pass and re-arms exactly
// one single-shot timer with a freshly computed delay. A pass already in
// flight defers the trigger instead of running twice.
func (s *Scheduler) runMaintenance() {
	if s.ctx.Err() != nil {
		return
	}
	if !s.maintInFlight.CompareAndSwap(false, true) {
		slog.Debug("Maintenance already running, deferring trigger")
		s.armTimer(minDelay + s.jitter(jitterMax))
		return
	}
	defer s.maintInFlight.Store(false)

	// Renewal runs first so an already-expired row is stopped and replaced
	// before setup-all inspects the active set; the reverse order would
	// register a second channel for the same resource.
	if err := s.maint.RenewExpiring(s.ctx); err != nil {
		slog.Error("Channel renewal pass failed", "error", err)
	}
	if err := s.maint.SetupAll(s.ctx); err != nil {
		slog.Error("Channel setup pass failed", "error", err)
	}

	soonest, err := s.maint.SoonestExpiry(s.ctx)
	if err != nil {
		slog.Error("Could not read soonest channel expiry", "error", err)
		soonest = nil
	}

	delay := computeNextDelay(soonest, s.now(), s.jitter)
	slog.Info("Next channel maintenance scheduled", "delay", delay)
	s.armTimer(delay)
}

// armTimer replaces the current single-shot timer so the delay can change
// every cycle.
func (s *Scheduler) armTimer(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.runMaintenance)
}

// TriggerSyncNow starts a sync outside the cron cadence, used by the inbound
// webhook path. It shares the in-flight guard with scheduled runs.
func (s *Scheduler) TriggerSyncNow() {
	go s.triggerSync(runs.TriggerWebhook)
}
