package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeNextDelay(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	noJitter := func(time.Duration) time.Duration { return 0 }
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name    string
		soonest *time.Time
		jitter  func(time.Duration) time.Duration
		want    time.Duration
	}{
		{
			name:    "no channel uses the fallback interval",
			soonest: nil,
			jitter:  noJitter,
			want:    6 * time.Hour,
		},
		{
			name:    "wakes one renewal buffer before expiry",
			soonest: at(30 * time.Hour),
			jitter:  noJitter,
			want:    6 * time.Hour,
		},
		{
			name:    "already inside the buffer clamps to the minimum",
			soonest: at(2 * time.Hour),
			jitter:  noJitter,
			want:    time.Minute,
		},
		{
			name:    "expired channel clamps to the minimum",
			soonest: at(-time.Hour),
			jitter:  noJitter,
			want:    time.Minute,
		},
		{
			name:    "distant expiry clamps to the maximum",
			soonest: at(10 * 24 * time.Hour),
			jitter:  noJitter,
			want:    12 * time.Hour,
		},
		{
			name:    "jitter is added after clamping",
			soonest: at(2 * time.Hour),
			jitter:  func(time.Duration) time.Duration { return 90 * time.Second },
			want:    time.Minute + 90*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, computeNextDelay(tt.soonest, now, tt.jitter))
		})
	}
}

func TestComputeNextDelayJitterBound(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var seen time.Duration
	jitter := func(max time.Duration) time.Duration {
		seen = max
		return 0
	}
	computeNextDelay(nil, now, jitter)
	assert.Equal(t, 5*time.Minute, seen)
}
