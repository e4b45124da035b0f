package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notluquis/bioalergia-sub006/internal/channels"
)

// ChannelStore persists active watch channels in the watch_channels table so
// subscriptions survive restarts.
type ChannelStore struct {
	pool *pgxpool.Pool
}

// NewChannelStore creates a channel store backed by the given pool.
func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

// Upsert stores or replaces a watch channel row keyed by channel id.
func (s *ChannelStore) Upsert(ctx context.Context, ch *channels.WatchChannel) error {
	const query = `
		INSERT INTO watch_channels
			(channel_id, external_resource_id, owner_resource_id, callback_address, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id) DO UPDATE SET
			external_resource_id = EXCLUDED.external_resource_id,
			owner_resource_id = EXCLUDED.owner_resource_id,
			callback_address = EXCLUDED.callback_address,
			expires_at = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, query,
		ch.ChannelID,
		ch.ExternalResourceID,
		ch.OwnerResourceID,
		ch.CallbackAddress,
		ch.ExpiresAt,
		ch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watch channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

// Delete removes a watch channel row. Deleting an absent row is a no-op so
// stops stay idempotent.
func (s *ChannelStore) Delete(ctx context.Context, channelID string) error {
	const query = `DELETE FROM watch_channels WHERE channel_id = $1`

	if _, err := s.pool.Exec(ctx, query, channelID); err != nil {
		return fmt.Errorf("failed to delete watch channel %s: %w", channelID, err)
	}
	return nil
}

// List returns all tracked watch channels ordered by expiry.
func (s *ChannelStore) List(ctx context.Context) ([]*channels.WatchChannel, error) {
	const query = `
		SELECT channel_id, external_resource_id, owner_resource_id, callback_address, expires_at, created_at
		FROM watch_channels
		ORDER BY expires_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch channels: %w", err)
	}
	defer rows.Close()

	var out []*channels.WatchChannel
	for rows.Next() {
		var ch channels.WatchChannel
		err := rows.Scan(
			&ch.ChannelID,
			&ch.ExternalResourceID,
			&ch.OwnerResourceID,
			&ch.CallbackAddress,
			&ch.ExpiresAt,
			&ch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch channel row: %w", err)
		}
		out = append(out, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read watch channel rows: %w", err)
	}
	return out, nil
}
