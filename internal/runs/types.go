// Package runs tracks synchronization runs start-to-finish: scope, trigger,
// per-unit counters and terminal status.
package runs

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a sync run.
type Status string

const (
	// StatusPending means the run row exists but work has not started.
	StatusPending Status = "PENDING"

	// StatusRunning means the run is in progress.
	StatusRunning Status = "RUNNING"

	// StatusSuccess means every requested unit succeeded.
	StatusSuccess Status = "SUCCESS"

	// StatusPartial means at least one unit succeeded and at least one
	// failed. Partial success is a first-class terminal state, not an error.
	StatusPartial Status = "PARTIAL"

	// StatusFailed means the run produced no unit outcome at all.
	StatusFailed Status = "FAILED"

	// StatusAbandoned is a presentation-only state for RUNNING runs older
	// than the staleness window; it is never written to storage.
	StatusAbandoned Status = "ABANDONED"
)

// StaleAfter is the window past which a RUNNING run is presented as
// abandoned rather than in progress. A crash before Finish leaves the stored
// row stuck in RUNNING forever.
const StaleAfter = 15 * time.Minute

// TriggerSource identifies what started a run.
type TriggerSource string

const (
	// TriggerScheduled is a cron-driven run.
	TriggerScheduled TriggerSource = "scheduled"

	// TriggerManual is an operator-invoked run via the API surface.
	TriggerManual TriggerSource = "manual"

	// TriggerWebhook is a run started by an inbound push notification.
	TriggerWebhook TriggerSource = "webhook"
)

// Scope bounds one run: the period synced and the unit types requested.
type Scope struct {
	Period string   `json:"period"`
	Units  []string `json:"units"`
}

// UnitCounters accumulates per-row outcomes within one unit.
type UnitCounters struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// UnitResult is the outcome of one unit within a run.
type UnitResult struct {
	Counters UnitCounters `json:"counters"`
	Error    string       `json:"error,omitempty"`
}

// Succeeded reports whether the unit completed without a unit-level failure.
func (u *UnitResult) Succeeded() bool {
	return u.Error == ""
}

// SyncRun is one execution of the synchronization pipeline over a bounded
// scope. Created at start; mutated exactly once at completion.
type SyncRun struct {
	ID           uuid.UUID              `json:"id"`
	Scope        Scope                  `json:"scope"`
	Trigger      TriggerSource          `json:"trigger"`
	TriggerUser  string                 `json:"triggerUser,omitempty"`
	Status       Status                 `json:"status"`
	Units        map[string]*UnitResult `json:"units"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	StartedAt    time.Time              `json:"startedAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// DisplayStatus returns the status as history consumers should see it:
// RUNNING runs older than the staleness window are abandoned, not in
// progress.
func (r *SyncRun) DisplayStatus(now time.Time) Status {
	if r.Status == StatusRunning && now.Sub(r.StartedAt) > StaleAfter {
		return StatusAbandoned
	}
	return r.Status
}
