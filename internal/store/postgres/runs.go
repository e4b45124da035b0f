package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notluquis/bioalergia-sub006/internal/runs"
)

// RunStore persists sync run history in the sync_runs table. The per-unit
// results are stored as jsonb since consumers only ever read them whole.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a run store backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create stores a new run row.
func (s *RunStore) Create(ctx context.Context, run *runs.SyncRun) error {
	const query = `
		INSERT INTO sync_runs
			(id, period, units, trigger_source, trigger_user, status, unit_results, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	unitResults, err := json.Marshal(run.Units)
	if err != nil {
		return fmt.Errorf("failed to encode unit results for run %s: %w", run.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.Scope.Period,
		run.Scope.Units,
		string(run.Trigger),
		run.TriggerUser,
		string(run.Status),
		unitResults,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of a run row.
func (s *RunStore) Update(ctx context.Context, run *runs.SyncRun) error {
	const query = `
		UPDATE sync_runs
		SET status = $2, unit_results = $3, error_message = $4, completed_at = $5
		WHERE id = $1`

	unitResults, err := json.Marshal(run.Units)
	if err != nil {
		return fmt.Errorf("failed to encode unit results for run %s: %w", run.ID, err)
	}

	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.Status),
		unitResults,
		run.ErrorMessage,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// List returns run history ordered newest first.
func (s *RunStore) List(ctx context.Context, limit, offset int) ([]*runs.SyncRun, error) {
	const query = `
		SELECT id, period, units, trigger_source, trigger_user, status, unit_results, error_message, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*runs.SyncRun
	for rows.Next() {
		var (
			run         runs.SyncRun
			trigger     string
			status      string
			unitResults []byte
		)
		err := rows.Scan(
			&run.ID,
			&run.Scope.Period,
			&run.Scope.Units,
			&trigger,
			&run.TriggerUser,
			&status,
			&unitResults,
			&run.ErrorMessage,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Trigger = runs.TriggerSource(trigger)
		run.Status = runs.Status(status)
		if err := json.Unmarshal(unitResults, &run.Units); err != nil {
			return nil, fmt.Errorf("failed to decode unit results for run %s: %w", run.ID, err)
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run rows: %w", err)
	}
	return out, nil
}
