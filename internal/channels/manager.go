package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notluquis/bioalergia-sub006/internal/remote"
	"github.com/notluquis/bioalergia-sub006/internal/telemetry"
)

const (
	// RenewBuffer is how far before expiry a channel is renewed.
	RenewBuffer = 24 * time.Hour

	// fallbackTTL applies when the provider response omits an expiration.
	fallbackTTL = 7 * 24 * time.Hour

	// idleLogInterval throttles the "nothing to do" log line.
	idleLogInterval = time.Hour
)

// CredentialSource supplies bearer credentials for provider calls; see the
// sii package for the fetch-side counterpart.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Manager drives the watch-channel lifecycle for a fixed set of watched
// resources.
type Manager struct {
	provider     Provider
	store        Store
	creds        CredentialSource
	callbackBase string
	watched      []string
	metrics      *telemetry.ChannelMetrics
	now          func() time.Time

	mu          sync.Mutex
	lastIdleLog time.Time
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithMetrics attaches channel lifecycle metrics to the manager.
func WithMetrics(m *telemetry.ChannelMetrics) ManagerOption {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithClock overrides the manager's clock, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(mgr *Manager) {
		mgr.now = now
	}
}

// NewManager creates a lifecycle manager. watched lists the local resource
// identifiers that should each carry an active channel.
func NewManager(provider Provider, store Store, creds CredentialSource, callbackBase string, watched []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:     provider,
		store:        store,
		creds:        creds,
		callbackBase: callbackBase,
		watched:      watched,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates a push subscription for the given resource and persists
// it. When credentials are unavailable the registration is a silent no-op;
// the feature degrades gracefully rather than failing the caller.
func (m *Manager) Register(ctx context.Context, ownerResourceID string) (*WatchChannel, error) {
	if _, err := m.creds.Token(ctx); err != nil {
		slog.Debug("Skipping channel registration, credentials unavailable",
			"resource", ownerResourceID,
			"error", err)
		return nil, nil
	}

	req := WatchRequest{
		ChannelID:       uuid.NewString(),
		OwnerResourceID: ownerResourceID,
		Address:         m.callbackAddress(ownerResourceID),
		TTL:             fallbackTTL,
	}

	resp, err := m.provider.Watch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registering channel for %s: %w", ownerResourceID, err)
	}

	expires := resp.Expiration
	if expires.IsZero() {
		expires = m.now().Add(fallbackTTL)
	}

	ch := &WatchChannel{
		ChannelID:          req.ChannelID,
		ExternalResourceID: resp.ExternalResourceID,
		OwnerResourceID:    ownerResourceID,
		CallbackAddress:    req.Address,
		ExpiresAt:          expires,
		CreatedAt:          m.now(),
	}
	if err := m.store.Upsert(ctx, ch); err != nil {
		return nil, fmt.Errorf("persisting channel %s: %w", ch.ChannelID, err)
	}

	slog.Info("Watch channel registered",
		"channel_id", ch.ChannelID,
		"resource", ownerResourceID,
		"expires_at", ch.ExpiresAt)
	return ch, nil
}

// Stop cancels the subscription with the provider and deletes the local row.
// A provider "not found" response counts as success: the channel is already
// gone and the local record must still be removed.
func (m *Manager) Stop(ctx context.Context, ch *WatchChannel) error {
	err := m.provider.Stop(ctx, ch.ChannelID, ch.ExternalResourceID)
	if err != nil && !isAlreadyGone(err) {
		return fmt.Errorf("stopping channel %s: %w", ch.ChannelID, err)
	}
	if err != nil {
		slog.Info("Channel already gone at provider, deleting local record",
			"channel_id", ch.ChannelID)
	}
	if err := m.store.Delete(ctx, ch.ChannelID); err != nil {
		return fmt.Errorf("deleting channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

// RenewExpiring stops and re-registers every channel whose expiry falls
// within the renewal buffer. One channel's failure never aborts renewal of
// the others.
func (m *Manager) RenewExpiring(ctx context.Context) error {
	items, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing channels: %w", err)
	}

	deadline := m.now().Add(RenewBuffer)
	renewed := 0
	for _, ch := range items {
		if ch.ExpiresAt.After(deadline) {
			continue
		}
		if err := m.renewOne(ctx, ch); err != nil {
			slog.Error("Channel renewal failed, continuing with remaining channels",
				"channel_id", ch.ChannelID,
				"resource", ch.OwnerResourceID,
				"error", err)
			m.metrics.RecordRenewal(ctx, false)
			continue
		}
		m.metrics.RecordRenewal(ctx, true)
		renewed++
	}

	if renewed > 0 {
		slog.Info("Channel renewal pass complete", "renewed", renewed)
	}
	return nil
}

func (m *Manager) renewOne(ctx context.Context, ch *WatchChannel) error {
	// The old external channel is explicitly stopped before a new one is
	// created for the same resource.
	if err := m.Stop(ctx, ch); err != nil {
		return err
	}
	_, err := m.Register(ctx, ch.OwnerResourceID)
	return err
}

// SetupAll registers a channel for every watched resource lacking an active
// (non-expired) one. Repeated no-op calls are cheap; the "nothing to do" log
// line is emitted at most once per hour.
func (m *Manager) SetupAll(ctx context.Context) error {
	items, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing channels: %w", err)
	}

	active := make(map[string]bool, len(items))
	now := m.now()
	for _, ch := range items {
		if !ch.Expired(now) {
			active[ch.OwnerResourceID] = true
		}
	}

	created := 0
	for _, resource := range m.watched {
		if active[resource] {
			continue
		}
		ch, err := m.Register(ctx, resource)
		if err != nil {
			slog.Error("Channel setup failed, continuing with remaining resources",
				"resource", resource,
				"error", err)
			continue
		}
		if ch != nil {
			created++
		}
	}

	if created == 0 {
		m.logIdle()
	}
	return nil
}

// SoonestExpiry returns the earliest expiry among tracked channels, or nil
// when no channel exists. The scheduler derives its next wake time from it.
func (m *Manager) SoonestExpiry(ctx context.Context) (*time.Time, error) {
	items, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	var soonest *time.Time
	for _, ch := range items {
		if soonest == nil || ch.ExpiresAt.Before(*soonest) {
			t := ch.ExpiresAt
			soonest = &t
		}
	}
	return soonest, nil
}

func (m *Manager) callbackAddress(ownerResourceID string) string {
	return strings.TrimRight(m.callbackBase, "/") + "/api/v0/webhook/calendar?resource=" + ownerResourceID
}

func (m *Manager) logIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Sub(m.lastIdleLog) < idleLogInterval {
		return
	}
	m.lastIdleLog = m.now()
	slog.Info("All watched resources have active channels, nothing to do")
}

// isAlreadyGone classifies a provider error as "the channel no longer
// exists": an HTTP 404 or a message indicating absence.
func isAlreadyGone(err error) bool {
	if remote.IsNotFound(err) {
		return true
	}
	var te *remote.TransportError
	if errors.As(err, &te) && te.Status == 404 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "channel does not exist")
}
