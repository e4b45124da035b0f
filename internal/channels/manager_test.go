package channels_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/notluquis/bioalergia-sub006/internal/channels"
	"github.com/notluquis/bioalergia-sub006/internal/channels/mocks"
	"github.com/notluquis/bioalergia-sub006/internal/remote"
)

type staticCreds struct {
	err error
}

func (c *staticCreds) Token(_ context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "token", nil
}

func clockAt(at time.Time) channels.ManagerOption {
	return channels.WithClock(func() time.Time { return at })
}

func TestRegister(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("happy path persists provider expiry", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		expiry := now.Add(48 * time.Hour)
		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req channels.WatchRequest) (*channels.WatchResponse, error) {
				assert.NotEmpty(t, req.ChannelID)
				assert.Equal(t, "primary", req.OwnerResourceID)
				assert.Equal(t, "https://sync.bioalergia.cl/api/v0/webhook/calendar?resource=primary", req.Address)
				return &channels.WatchResponse{ExternalResourceID: "ext-123", Expiration: expiry}, nil
			})
		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ch *channels.WatchChannel) error {
				assert.Equal(t, "ext-123", ch.ExternalResourceID)
				assert.Equal(t, "primary", ch.OwnerResourceID)
				assert.Equal(t, expiry, ch.ExpiresAt)
				return nil
			})

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl/", nil, clockAt(now))

		ch, err := mgr.Register(t.Context(), "primary")
		require.NoError(t, err)
		require.NotNil(t, ch)
		assert.Equal(t, expiry, ch.ExpiresAt)
	})

	t.Run("missing provider expiry falls back to default ttl", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			Return(&channels.WatchResponse{ExternalResourceID: "ext-123"}, nil)
		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil, clockAt(now))

		ch, err := mgr.Register(t.Context(), "primary")
		require.NoError(t, err)
		require.NotNil(t, ch)
		assert.Equal(t, now.Add(7*24*time.Hour), ch.ExpiresAt)
	})

	t.Run("unavailable credentials degrade to a silent no-op", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		mgr := channels.NewManager(provider, store, &staticCreds{err: errors.New("auth refused")}, "https://sync.bioalergia.cl", nil)

		ch, err := mgr.Register(t.Context(), "primary")
		require.NoError(t, err)
		assert.Nil(t, ch)
	})

	t.Run("provider failure surfaces", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			Return(nil, &remote.TransportError{Status: 503})

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil)

		_, err := mgr.Register(t.Context(), "primary")
		assert.Error(t, err)
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	ch := &channels.WatchChannel{ChannelID: "chan-1", ExternalResourceID: "ext-1"}

	t.Run("stops at provider and deletes local record", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		provider.EXPECT().Stop(gomock.Any(), "chan-1", "ext-1").Return(nil)
		store.EXPECT().Delete(gomock.Any(), "chan-1").Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil)
		assert.NoError(t, mgr.Stop(t.Context(), ch))
	})

	t.Run("provider 404 still deletes local record", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		provider.EXPECT().Stop(gomock.Any(), "chan-1", "ext-1").
			Return(&remote.NotFoundError{Resource: "channels/chan-1"})
		store.EXPECT().Delete(gomock.Any(), "chan-1").Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil)
		assert.NoError(t, mgr.Stop(t.Context(), ch))
	})

	t.Run("other provider errors abort before local delete", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		provider.EXPECT().Stop(gomock.Any(), "chan-1", "ext-1").
			Return(&remote.TransportError{Status: 500})

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil)
		assert.Error(t, mgr.Stop(t.Context(), ch))
	})
}

func TestRenewExpiring(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("renews only channels inside the buffer", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		expiring := &channels.WatchChannel{ChannelID: "old", ExternalResourceID: "ext-old", OwnerResourceID: "primary", ExpiresAt: now.Add(6 * time.Hour)}
		healthy := &channels.WatchChannel{ChannelID: "new", ExternalResourceID: "ext-new", OwnerResourceID: "secondary", ExpiresAt: now.Add(72 * time.Hour)}
		store.EXPECT().List(gomock.Any()).Return([]*channels.WatchChannel{expiring, healthy}, nil)

		// Only the expiring channel gets the stop/re-register cycle.
		provider.EXPECT().Stop(gomock.Any(), "old", "ext-old").Return(nil)
		store.EXPECT().Delete(gomock.Any(), "old").Return(nil)
		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			Return(&channels.WatchResponse{ExternalResourceID: "ext-renewed", Expiration: now.Add(7 * 24 * time.Hour)}, nil)
		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil, clockAt(now))
		assert.NoError(t, mgr.RenewExpiring(t.Context()))
	})

	t.Run("one failure never aborts the pass", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		first := &channels.WatchChannel{ChannelID: "a", ExternalResourceID: "ext-a", OwnerResourceID: "primary", ExpiresAt: now.Add(time.Hour)}
		second := &channels.WatchChannel{ChannelID: "b", ExternalResourceID: "ext-b", OwnerResourceID: "secondary", ExpiresAt: now.Add(2 * time.Hour)}
		store.EXPECT().List(gomock.Any()).Return([]*channels.WatchChannel{first, second}, nil)

		provider.EXPECT().Stop(gomock.Any(), "a", "ext-a").
			Return(&remote.TransportError{Status: 500})
		provider.EXPECT().Stop(gomock.Any(), "b", "ext-b").Return(nil)
		store.EXPECT().Delete(gomock.Any(), "b").Return(nil)
		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			Return(&channels.WatchResponse{ExternalResourceID: "ext-b2", Expiration: now.Add(7 * 24 * time.Hour)}, nil)
		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", nil, clockAt(now))
		assert.NoError(t, mgr.RenewExpiring(t.Context()))
	})
}

func TestSetupAll(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("registers only resources without an active channel", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		active := &channels.WatchChannel{ChannelID: "a", OwnerResourceID: "primary", ExpiresAt: now.Add(48 * time.Hour)}
		expired := &channels.WatchChannel{ChannelID: "b", OwnerResourceID: "secondary", ExpiresAt: now.Add(-time.Hour)}
		store.EXPECT().List(gomock.Any()).Return([]*channels.WatchChannel{active, expired}, nil)

		provider.EXPECT().Watch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req channels.WatchRequest) (*channels.WatchResponse, error) {
				assert.Equal(t, "secondary", req.OwnerResourceID)
				return &channels.WatchResponse{ExternalResourceID: "ext-new", Expiration: now.Add(7 * 24 * time.Hour)}, nil
			})
		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", []string{"primary", "secondary"}, clockAt(now))
		assert.NoError(t, mgr.SetupAll(t.Context()))
	})

	t.Run("all active is a no-op", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		store := mocks.NewMockStore(ctrl)

		active := &channels.WatchChannel{ChannelID: "a", OwnerResourceID: "primary", ExpiresAt: now.Add(48 * time.Hour)}
		store.EXPECT().List(gomock.Any()).Return([]*channels.WatchChannel{active}, nil)

		mgr := channels.NewManager(provider, store, &staticCreds{}, "https://sync.bioalergia.cl", []string{"primary"}, clockAt(now))
		assert.NoError(t, mgr.SetupAll(t.Context()))
	})
}

func TestSoonestExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("returns the earliest expiry", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)

		early := now.Add(6 * time.Hour)
		store.EXPECT().List(gomock.Any()).Return([]*channels.WatchChannel{
			{ChannelID: "a", ExpiresAt: now.Add(48 * time.Hour)},
			{ChannelID: "b", ExpiresAt: early},
		}, nil)

		mgr := channels.NewManager(mocks.NewMockProvider(ctrl), store, &staticCreds{}, "https://sync.bioalergia.cl", nil)
		got, err := mgr.SoonestExpiry(t.Context())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, early, *got)
	})

	t.Run("nil when no channels exist", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().List(gomock.Any()).Return(nil, nil)

		mgr := channels.NewManager(mocks.NewMockProvider(ctrl), store, &staticCreds{}, "https://sync.bioalergia.cl", nil)
		got, err := mgr.SoonestExpiry(t.Context())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
