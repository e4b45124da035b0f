// Package channels manages push-notification watch channels registered with
// the calendar provider: registration, idempotent stop, renewal before
// expiry, and setup of missing channels.
package channels

import (
	"context"
	"time"
)

// WatchChannel is a provider-side push subscription tracked locally.
// ExpiresAt is refreshed in place on renewal; the row is deleted when the
// provider reports the channel gone or it is explicitly stopped.
type WatchChannel struct {
	ChannelID          string
	ExternalResourceID string
	OwnerResourceID    string
	CallbackAddress    string
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

// Expired reports whether the channel is past its expiry at t.
func (c *WatchChannel) Expired(t time.Time) bool {
	return !c.ExpiresAt.After(t)
}

// WatchRequest is the provider registration payload.
type WatchRequest struct {
	ChannelID       string
	OwnerResourceID string
	Address         string
	TTL             time.Duration
}

// WatchResponse carries the provider-assigned identity and expiry.
type WatchResponse struct {
	ExternalResourceID string
	Expiration         time.Time
}

// Provider is the external push-subscription API.
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks github.com/notluquis/bioalergia-sub006/internal/channels Provider
type Provider interface {
	// Watch registers a push subscription for the given resource.
	Watch(ctx context.Context, req WatchRequest) (*WatchResponse, error)

	// Stop cancels a subscription. Implementations return an error the
	// manager can classify as "already gone" for idempotent stops.
	Stop(ctx context.Context, channelID, externalResourceID string) error
}

// Store persists watch channel rows.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/notluquis/bioalergia-sub006/internal/channels Store
type Store interface {
	Upsert(ctx context.Context, ch *WatchChannel) error
	Delete(ctx context.Context, channelID string) error
	List(ctx context.Context) ([]*WatchChannel, error)
}
