package runs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/notluquis/bioalergia-sub006/internal/runs"
	"github.com/notluquis/bioalergia-sub006/internal/runs/mocks"
)

func TestTrackerStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	var created *runs.SyncRun
	store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, run *runs.SyncRun) error {
			created = run
			return nil
		})

	tracker := runs.NewTracker(store)
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos", "recibidos"}}
	run, err := tracker.Start(t.Context(), scope, runs.TriggerManual, "operator@bioalergia.cl")
	require.NoError(t, err)

	assert.Same(t, created, run)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, runs.StatusRunning, run.Status)
	assert.Equal(t, scope, run.Scope)
	assert.Equal(t, runs.TriggerManual, run.Trigger)
	assert.Equal(t, "operator@bioalergia.cl", run.TriggerUser)
	assert.False(t, run.StartedAt.IsZero())
	assert.Nil(t, run.CompletedAt)
}

func TestTrackerStartStoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	tracker := runs.NewTracker(store)
	_, err := tracker.Start(t.Context(), runs.Scope{Period: "202403"}, runs.TriggerScheduled, "")
	assert.Error(t, err)
}

func TestTrackerFinish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		units        map[string]*runs.UnitResult
		errorMessage string
		wantStatus   runs.Status
		wantErrorMsg string
	}{
		{
			name: "all units succeeded",
			units: map[string]*runs.UnitResult{
				"emitidos":  {Counters: runs.UnitCounters{Processed: 2, Inserted: 2}},
				"recibidos": {Counters: runs.UnitCounters{Processed: 1, Updated: 1}},
			},
			wantStatus: runs.StatusSuccess,
		},
		{
			name: "mixed outcomes are partial",
			units: map[string]*runs.UnitResult{
				"emitidos":  {Counters: runs.UnitCounters{Processed: 2, Inserted: 2}},
				"recibidos": {Error: "fetch failed: 503"},
			},
			wantStatus: runs.StatusPartial,
		},
		{
			name: "no unit succeeded",
			units: map[string]*runs.UnitResult{
				"emitidos": {Error: "fetch failed: 503"},
			},
			wantStatus:   runs.StatusFailed,
			wantErrorMsg: "fetch failed: 503",
		},
		{
			name:         "no unit outcome at all",
			units:        map[string]*runs.UnitResult{},
			errorMessage: "credentials unavailable",
			wantStatus:   runs.StatusFailed,
			wantErrorMsg: "credentials unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

			tracker := runs.NewTracker(store)
			run := &runs.SyncRun{
				ID:        uuid.New(),
				Status:    runs.StatusRunning,
				Units:     tt.units,
				StartedAt: time.Now(),
			}
			require.NoError(t, tracker.Finish(t.Context(), run, tt.errorMessage))

			assert.Equal(t, tt.wantStatus, run.Status)
			assert.Equal(t, tt.wantErrorMsg, run.ErrorMessage)
			require.NotNil(t, run.CompletedAt)
		})
	}
}

func TestResolveStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, runs.StatusFailed, runs.ResolveStatus(nil))
	assert.Equal(t, runs.StatusSuccess, runs.ResolveStatus(map[string]*runs.UnitResult{
		"emitidos": {},
	}))
	assert.Equal(t, runs.StatusFailed, runs.ResolveStatus(map[string]*runs.UnitResult{
		"emitidos": {Error: "boom"},
	}))
	assert.Equal(t, runs.StatusPartial, runs.ResolveStatus(map[string]*runs.UnitResult{
		"emitidos":  {},
		"recibidos": {Error: "boom"},
	}))
}

func TestDisplayStatus(t *testing.T) {
	t.Parallel()

	now := time.Now()

	fresh := &runs.SyncRun{Status: runs.StatusRunning, StartedAt: now.Add(-time.Minute)}
	assert.Equal(t, runs.StatusRunning, fresh.DisplayStatus(now))

	stale := &runs.SyncRun{Status: runs.StatusRunning, StartedAt: now.Add(-16 * time.Minute)}
	assert.Equal(t, runs.StatusAbandoned, stale.DisplayStatus(now))

	// Terminal states never go stale.
	done := &runs.SyncRun{Status: runs.StatusSuccess, StartedAt: now.Add(-24 * time.Hour)}
	assert.Equal(t, runs.StatusSuccess, done.DisplayStatus(now))
}

func TestTrackerListAppliesStaleness(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	stale := &runs.SyncRun{ID: uuid.New(), Status: runs.StatusRunning, StartedAt: time.Now().Add(-time.Hour)}
	done := &runs.SyncRun{ID: uuid.New(), Status: runs.StatusSuccess, StartedAt: time.Now().Add(-2 * time.Hour)}
	store.EXPECT().List(gomock.Any(), 20, 0).Return([]*runs.SyncRun{stale, done}, nil)

	tracker := runs.NewTracker(store)
	items, err := tracker.List(t.Context(), 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, runs.StatusAbandoned, items[0].Status)
	assert.Equal(t, runs.StatusSuccess, items[1].Status)
}
