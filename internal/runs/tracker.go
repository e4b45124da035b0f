package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists run rows. Create is called once at run start, Update once at
// completion.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/notluquis/bioalergia-sub006/internal/runs Store
type Store interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	List(ctx context.Context, limit, offset int) ([]*SyncRun, error)
}

// Tracker creates a run record at start, and finalizes status with error
// detail at completion. Finish is called exactly once per run.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Start creates the run row in RUNNING state and returns it.
func (t *Tracker) Start(ctx context.Context, scope Scope, trigger TriggerSource, triggerUser string) (*SyncRun, error) {
	run := &SyncRun{
		ID:          uuid.New(),
		Scope:       scope,
		Trigger:     trigger,
		TriggerUser: triggerUser,
		Status:      StatusRunning,
		Units:       make(map[string]*UnitResult, len(scope.Units)),
		StartedAt:   t.now(),
	}
	if err := t.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run record: %w", err)
	}
	return run, nil
}

// Finish resolves the terminal status from the accumulated unit results and
// persists the completed run. errorMessage carries the causing message when
// the run produced no unit outcome at all.
func (t *Tracker) Finish(ctx context.Context, run *SyncRun, errorMessage string) error {
	now := t.now()
	run.CompletedAt = &now
	run.Status = ResolveStatus(run.Units)
	if run.Status == StatusFailed {
		run.ErrorMessage = errorMessage
		if run.ErrorMessage == "" {
			run.ErrorMessage = firstUnitError(run.Units)
		}
	}
	if err := t.store.Update(ctx, run); err != nil {
		return fmt.Errorf("finalizing run record: %w", err)
	}
	return nil
}

// ResolveStatus derives the terminal run status from unit outcomes: SUCCESS
// when every unit succeeded, PARTIAL when outcomes are mixed, FAILED when no
// unit succeeded.
func ResolveStatus(units map[string]*UnitResult) Status {
	if len(units) == 0 {
		return StatusFailed
	}
	succeeded, failed := 0, 0
	for _, u := range units {
		if u.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func firstUnitError(units map[string]*UnitResult) string {
	for _, u := range units {
		if u.Error != "" {
			return u.Error
		}
	}
	return ""
}

// List returns run history, newest first, with staleness applied to the
// presented status.
func (t *Tracker) List(ctx context.Context, limit, offset int) ([]*SyncRun, error) {
	items, err := t.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	now := t.now()
	for _, run := range items {
		run.Status = run.DisplayStatus(now)
	}
	return items, nil
}
