package player

import (
	"context"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
)

// Store is the guild-keyed state shared between request handlers and the
// push layer. Implementations must be safe for concurrent use; per-key
// operations are the only serialization point, there are no cross-key
// transactions.
type Store interface {
	// GetQueue returns the guild's queue in index order, empty if none.
	GetQueue(ctx context.Context, guildID snowflake.ID) ([]model.QueueEntry, error)

	// SetQueue replaces the queue. Callers recompute indices first.
	SetQueue(ctx context.Context, guildID snowflake.ID, entries []model.QueueEntry) error

	// GetCurrentTrack returns nil when nothing is playing.
	GetCurrentTrack(ctx context.Context, guildID snowflake.ID) (*model.QueueEntry, error)

	SetCurrentTrack(ctx context.Context, guildID snowflake.ID, entry model.QueueEntry) error

	ClearCurrentTrack(ctx context.Context, guildID snowflake.ID) error

	// GetSettings returns nil when the guild has no cached settings.
	GetSettings(ctx context.Context, guildID snowflake.ID) (*model.PlayerSettings, error)

	SetSettings(ctx context.Context, guildID snowflake.ID, settings model.PlayerSettings) error

	// Reset drops all player state for a guild.
	Reset(ctx context.Context, guildID snowflake.ID) error
}
