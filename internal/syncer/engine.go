// Package syncer orchestrates one synchronization run: credential, per-unit
// fetch, normalization, row-by-row reconciliation and run finalization.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notluquis/bioalergia-sub006/internal/normalize"
	"github.com/notluquis/bioalergia-sub006/internal/reconcile"
	"github.com/notluquis/bioalergia-sub006/internal/record"
	"github.com/notluquis/bioalergia-sub006/internal/remote"
	"github.com/notluquis/bioalergia-sub006/internal/runs"
	"github.com/notluquis/bioalergia-sub006/internal/sii"
	"github.com/notluquis/bioalergia-sub006/internal/telemetry"
)

// Fetcher downloads raw document exports. Implemented by the sii client.
//
//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks github.com/notluquis/bioalergia-sub006/internal/syncer Fetcher
type Fetcher interface {
	FetchDocumentCSV(ctx context.Context, unit sii.DocumentUnit, period string) ([]byte, error)
	ListPeriods(ctx context.Context, unit sii.DocumentUnit) ([]sii.Period, error)
}

// CredentialSource gates a run on a valid credential being obtainable.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics attaches sync metrics to the engine.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMode sets the reconciliation write mode, e.g. insert-only backfills.
func WithMode(mode reconcile.Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// Engine runs the synchronization pipeline. Units within a run are processed
// strictly sequentially so no two reconciliations race on a natural key.
type Engine struct {
	fetcher Fetcher
	creds   CredentialSource
	store   reconcile.RecordStore
	tracker *runs.Tracker
	metrics *telemetry.SyncMetrics
	mode    reconcile.Mode
	now     func() time.Time
}

// New creates a sync engine.
func New(fetcher Fetcher, creds CredentialSource, store reconcile.RecordStore, tracker *runs.Tracker, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		creds:   creds,
		store:   store,
		tracker: tracker,
		mode:    reconcile.ModeUpsert,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// unitFamily maps a document unit onto its record family.
func unitFamily(unit sii.DocumentUnit) string {
	if unit == sii.UnitReceived {
		return record.FamilyReceivedDocument
	}
	return record.FamilyIssuedDocument
}

// RunSync executes one synchronization run over the given scope and returns
// the completed run record. The returned error covers only tracking
// failures; unit and row failures are recorded in the run itself.
func (e *Engine) RunSync(ctx context.Context, scope runs.Scope, trigger runs.TriggerSource, triggerUser string) (*runs.SyncRun, error) {
	run, err := e.tracker.Start(ctx, scope, trigger, triggerUser)
	if err != nil {
		return nil, err
	}

	started := e.now()
	slog.Info("Sync run started",
		"run_id", run.ID,
		"period", scope.Period,
		"units", scope.Units,
		"trigger", trigger)

	// A run that cannot obtain a credential at all produces no unit outcome
	// and finishes FAILED.
	if _, err := e.creds.Token(ctx); err != nil {
		msg := fmt.Sprintf("credential could not be obtained: %v", err)
		slog.Error("Sync run failed before fetching", "run_id", run.ID, "error", err)
		if ferr := e.tracker.Finish(ctx, run, msg); ferr != nil {
			return run, ferr
		}
		e.recordMetrics(ctx, run, started)
		return run, nil
	}

	for _, unitName := range scope.Units {
		unit := sii.DocumentUnit(unitName)
		result := e.syncUnit(ctx, unit, scope.Period)
		run.Units[unitName] = result
	}

	if err := e.tracker.Finish(ctx, run, ""); err != nil {
		return run, err
	}
	e.recordMetrics(ctx, run, started)

	slog.Info("Sync run finished",
		"run_id", run.ID,
		"status", run.Status)
	return run, nil
}

// syncUnit fetches, normalizes and reconciles one document unit. Row
// failures are counted and skipped; only fetch/parse failures fail the unit.
func (e *Engine) syncUnit(ctx context.Context, unit sii.DocumentUnit, period string) *runs.UnitResult {
	result := &runs.UnitResult{}

	if !unit.Valid() {
		result.Error = fmt.Sprintf("unknown document unit %q", unit)
		return result
	}

	payload, err := e.fetcher.FetchDocumentCSV(ctx, unit, period)
	if err != nil {
		if remote.IsNotFound(err) {
			// No data for this unit in the period; an empty unit succeeds.
			slog.Info("No documents for unit in period", "unit", unit, "period", period)
			return result
		}
		result.Error = fmt.Sprintf("fetch failed: %v", err)
		return result
	}

	records, err := normalize.Records(payload, period)
	if err != nil {
		result.Error = fmt.Sprintf("payload could not be parsed: %v", err)
		return result
	}

	family := unitFamily(unit)
	recon := reconcile.New(e.store, e.mode)
	for _, rec := range records {
		result.Counters.Processed++
		switch recon.Apply(ctx, family, rec) {
		case reconcile.OutcomeInserted:
			result.Counters.Inserted++
		case reconcile.OutcomeUpdated:
			result.Counters.Updated++
		case reconcile.OutcomeSkipped:
			result.Counters.Skipped++
		}
	}

	slog.Info("Unit reconciled",
		"unit", unit,
		"period", period,
		"processed", result.Counters.Processed,
		"inserted", result.Counters.Inserted,
		"updated", result.Counters.Updated,
		"skipped", result.Counters.Skipped)
	return result
}

// ListRuns returns paginated run history for the manual trigger surface.
func (e *Engine) ListRuns(ctx context.Context, limit, offset int) ([]*runs.SyncRun, error) {
	return e.tracker.List(ctx, limit, offset)
}

func (e *Engine) recordMetrics(ctx context.Context, run *runs.SyncRun, started time.Time) {
	if e.metrics == nil {
		return
	}
	success := run.Status == runs.StatusSuccess
	e.metrics.RecordSyncDuration(ctx, string(run.Trigger), e.now().Sub(started), success)
	for unit, result := range run.Units {
		e.metrics.RecordReconcileOutcomes(ctx, unit, result.Counters)
	}
}
