// Package reconcile applies canonical records against the record store with
// insert/update/skip semantics keyed on the record's natural key.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/notluquis/bioalergia-sub006/internal/record"
)

// Outcome is the reconciliation decision for one record.
type Outcome string

const (
	// OutcomeInserted means no stored record existed for the natural key.
	OutcomeInserted Outcome = "inserted"

	// OutcomeUpdated means a stored record existed and at least one
	// non-system field differed.
	OutcomeUpdated Outcome = "updated"

	// OutcomeSkipped means the record required no write, could not be keyed,
	// or failed to persist. Failed rows never abort the batch.
	OutcomeSkipped Outcome = "skipped"
)

// Mode selects the write policy.
type Mode int

const (
	// ModeUpsert inserts missing records and updates differing ones.
	ModeUpsert Mode = iota

	// ModeInsertOnly skips any existing record without comparison. Used for
	// bulk historical backfills where overwrites are undesirable.
	ModeInsertOnly
)

// RecordStore is the persistence interface consumed by the reconciler.
// FindByKey returns (nil, nil) when no record exists for the key.
//
//go:generate mockgen -destination=mocks/mock_record_store.go -package=mocks github.com/notluquis/bioalergia-sub006/internal/reconcile RecordStore
type RecordStore interface {
	FindByKey(ctx context.Context, family, naturalKey string) (*record.Stored, error)
	Insert(ctx context.Context, family, naturalKey string, fields record.Record) error
	Update(ctx context.Context, stored *record.Stored, fields record.Record) error
}

// Reconciler decides and applies INSERT / UPDATE / SKIP per record.
type Reconciler struct {
	store RecordStore
	mode  Mode
}

// New creates a reconciler over the given store.
func New(store RecordStore, mode Mode) *Reconciler {
	return &Reconciler{store: store, mode: mode}
}

// Apply reconciles one canonical record against storage. Every failure path
// degrades to OutcomeSkipped and is logged with the row's identifying
// fields; a malformed row must never abort the batch.
func (r *Reconciler) Apply(ctx context.Context, family string, rec record.Record) Outcome {
	key, err := rec.KeyValue(record.KeyFields(family)...)
	if err != nil {
		slog.Warn("Skipping row without natural key",
			"family", family,
			"folio", rec.String("folio"),
			"counterparty_rut", rec.String("counterparty_rut"),
			"error", err)
		return OutcomeSkipped
	}

	existing, err := r.store.FindByKey(ctx, family, key)
	if err != nil {
		slog.Error("Skipping row after store lookup failure",
			"family", family,
			"natural_key", key,
			"error", err)
		return OutcomeSkipped
	}

	if existing == nil {
		if err := r.store.Insert(ctx, family, key, rec); err != nil {
			slog.Error("Skipping row after insert failure",
				"family", family,
				"natural_key", key,
				"error", err)
			return OutcomeSkipped
		}
		return OutcomeInserted
	}

	if r.mode == ModeInsertOnly {
		return OutcomeSkipped
	}

	if record.Equal(rec, existing.Fields) {
		return OutcomeSkipped
	}

	// Full-record update, not a partial patch.
	if err := r.store.Update(ctx, existing, rec); err != nil {
		slog.Error("Skipping row after update failure",
			"family", family,
			"natural_key", key,
			"error", err)
		return OutcomeSkipped
	}
	return OutcomeUpdated
}
