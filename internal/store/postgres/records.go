package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notluquis/bioalergia-sub006/internal/record"
)

// RecordStore persists canonical records in the canonical_records table.
// Fields are stored as jsonb; values loaded back arrive as string, float64
// or nil, which the record comparison canonicalizes identically to their
// typed originals.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore creates a record store backed by the given pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// FindByKey loads the record stored under (family, naturalKey), returning
// (nil, nil) when no such record exists.
func (s *RecordStore) FindByKey(ctx context.Context, family, naturalKey string) (*record.Stored, error) {
	const query = `
		SELECT id, family, natural_key, fields, created_at, updated_at
		FROM canonical_records
		WHERE family = $1 AND natural_key = $2`

	var (
		stored    record.Stored
		rawFields []byte
	)
	err := s.pool.QueryRow(ctx, query, family, naturalKey).Scan(
		&stored.ID,
		&stored.Family,
		&stored.NaturalKey,
		&rawFields,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s/%s: %w", family, naturalKey, err)
	}

	if err := json.Unmarshal(rawFields, &stored.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode record fields %s/%s: %w", family, naturalKey, err)
	}
	return &stored, nil
}

// Insert stores a new record. The unique index on (family, natural_key)
// rejects duplicate inserts.
func (s *RecordStore) Insert(ctx context.Context, family, naturalKey string, fields record.Record) error {
	const query = `
		INSERT INTO canonical_records (id, family, natural_key, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode record fields %s/%s: %w", family, naturalKey, err)
	}

	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx, query, uuid.New(), family, naturalKey, encoded, now); err != nil {
		return fmt.Errorf("failed to insert record %s/%s: %w", family, naturalKey, err)
	}
	return nil
}

// Update replaces the full field set of an existing record and bumps
// updated_at.
func (s *RecordStore) Update(ctx context.Context, stored *record.Stored, fields record.Record) error {
	const query = `
		UPDATE canonical_records
		SET fields = $2, updated_at = $3
		WHERE id = $1`

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode record fields %s: %w", stored.NaturalKey, err)
	}

	tag, err := s.pool.Exec(ctx, query, stored.ID, encoded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", stored.NaturalKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s vanished during update", stored.NaturalKey)
	}
	return nil
}
