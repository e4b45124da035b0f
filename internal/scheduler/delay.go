package scheduler

import (
	"time"

	"github.com/notluquis/bioalergia-sub006/internal/channels"
)

const (
	// minDelay and maxDelay clamp the adaptive renewal delay.
	minDelay = time.Minute
	maxDelay = 12 * time.Hour

	// jitterMax bounds the random offset added to every computed delay to
	// avoid thundering-herd renewal across tenants.
	jitterMax = 5 * time.Minute

	// fallbackInterval is used when no watch channel exists yet.
	fallbackInterval = 6 * time.Hour
)

// computeNextDelay derives the delay until the next maintenance pass from
// the soonest channel expiry: (expiry − renewal buffer) from now, clamped
// into [minDelay, maxDelay], plus jitter in [0, jitterMax). With no channel
// present the delay is the fixed fallback interval plus jitter.
//
// The function is pure; jitter is injected so timer plumbing and delay
// policy stay independently testable.
func computeNextDelay(soonest *time.Time, now time.Time, jitter func(max time.Duration) time.Duration) time.Duration {
	var delay time.Duration
	if soonest == nil {
		delay = fallbackInterval
	} else {
		delay = soonest.Sub(now) - channels.RenewBuffer
		if delay < minDelay {
			delay = minDelay
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay + jitter(jitterMax)
}
