package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedMaintainer records the order of maintenance calls.
type orderedMaintainer struct {
	calls []string
}

func (m *orderedMaintainer) SetupAll(_ context.Context) error {
	m.calls = append(m.calls, "setup")
	return nil
}

func (m *orderedMaintainer) RenewExpiring(_ context.Context) error {
	m.calls = append(m.calls, "renew")
	return nil
}

func (m *orderedMaintainer) SoonestExpiry(_ context.Context) (*time.Time, error) {
	m.calls = append(m.calls, "soonest")
	return nil, nil
}

func TestRunMaintenanceRenewsBeforeSetup(t *testing.T) {
	t.Parallel()

	maint := &orderedMaintainer{}
	s := New(Config{}, nil, maint)
	s.jitter = func(time.Duration) time.Duration { return 0 }
	s.ctx, s.cancel = context.WithCancel(t.Context())
	defer s.Stop()

	s.runMaintenance()

	// An already-expired channel must be stopped and replaced by the renewal
	// pass before setup-all inspects the active set; calling setup first
	// would register a duplicate channel for the resource.
	require.Equal(t, []string{"renew", "setup", "soonest"}, maint.calls)
}

func TestRunMaintenanceStopsWithContext(t *testing.T) {
	t.Parallel()

	maint := &orderedMaintainer{}
	s := New(Config{}, nil, maint)
	s.ctx, s.cancel = context.WithCancel(t.Context())
	s.cancel()

	s.runMaintenance()
	assert.Empty(t, maint.calls)
}
