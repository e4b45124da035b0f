// Package inmemory provides mutex-guarded in-memory implementations of the
// record, run and channel stores, used in tests and local development.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notluquis/bioalergia-sub006/internal/channels"
	"github.com/notluquis/bioalergia-sub006/internal/record"
	"github.com/notluquis/bioalergia-sub006/internal/runs"
)

// RecordStore is an in-memory reconcile.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*record.Stored // keyed by family + "\x00" + natural key
	now     func() time.Time
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]*record.Stored),
		now:     time.Now,
	}
}

func recordKey(family, naturalKey string) string {
	return family + "\x00" + naturalKey
}

// FindByKey returns the stored record for the natural key, or (nil, nil)
// when absent.
func (s *RecordStore) FindByKey(_ context.Context, family, naturalKey string) (*record.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.records[recordKey(family, naturalKey)]
	if !ok {
		return nil, nil
	}
	copied := *stored
	copied.Fields = stored.Fields.Clone()
	return &copied, nil
}

// Insert stores a new record under the natural key.
func (s *RecordStore) Insert(_ context.Context, family, naturalKey string, fields record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.records[recordKey(family, naturalKey)] = &record.Stored{
		ID:         uuid.New(),
		Family:     family,
		NaturalKey: naturalKey,
		Fields:     fields.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

// Update replaces the full field set of an existing record.
func (s *RecordStore) Update(_ context.Context, stored *record.Stored, fields record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[recordKey(stored.Family, stored.NaturalKey)]
	if ok {
		existing.Fields = fields.Clone()
		existing.UpdatedAt = s.now()
	}
	return nil
}

// Count returns the number of stored canonical records.
func (s *RecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RunStore is an in-memory runs.Store.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*runs.SyncRun
}

// NewRunStore creates an empty in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]*runs.SyncRun)}
}

// Create stores a new run row.
func (s *RunStore) Create(_ context.Context, run *runs.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

// Update overwrites a run row.
func (s *RunStore) Update(_ context.Context, run *runs.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

// List returns run history, newest first.
func (s *RunStore) List(_ context.Context, limit, offset int) ([]*runs.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*runs.SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// ChannelStore is an in-memory channels.Store.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[string]*channels.WatchChannel
}

// NewChannelStore creates an empty in-memory channel store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{channels: make(map[string]*channels.WatchChannel)}
}

// Upsert stores or replaces a watch channel row.
func (s *ChannelStore) Upsert(_ context.Context, ch *channels.WatchChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ch
	s.channels[ch.ChannelID] = &copied
	return nil
}

// Delete removes a watch channel row; deleting an absent row is a no-op.
func (s *ChannelStore) Delete(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	return nil
}

// List returns all tracked watch channels ordered by expiry.
func (s *ChannelStore) List(_ context.Context) ([]*channels.WatchChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*channels.WatchChannel, 0, len(s.channels))
	for _, ch := range s.channels {
		copied := *ch
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ExpiresAt.Before(all[j].ExpiresAt)
	})
	return all, nil
}
