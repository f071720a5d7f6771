package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/go-redis/v9"
)

// playerStateTTL bounds how long idle guild state lives in Redis. Writes
// refresh it, so only guilds with no player activity at all expire.
const playerStateTTL = 24 * time.Hour

func queueKey(guildID snowflake.ID) string {
	return fmt.Sprintf("player:queue:%s", guildID)
}

func currentTrackKey(guildID snowflake.ID) string {
	return fmt.Sprintf("player:current:%s", guildID)
}

func settingsKey(guildID snowflake.ID) string {
	return fmt.Sprintf("player:settings:%s", guildID)
}

// RedisPlayerStore is the Redis-backed player state store. The queue is a
// sorted set scored by entry index; current track and settings are JSON
// strings. Each key is atomic on its own; there are no cross-key
// transactions.
type RedisPlayerStore struct {
	rdb *redis.Client
}

// NewRedisPlayerStore creates a Redis-backed player store.
func NewRedisPlayerStore(rdb *redis.Client) *RedisPlayerStore {
	return &RedisPlayerStore{rdb: rdb}
}

// GetQueue returns the ordered queue for a guild. A guild without a queue
// yields an empty slice, not an error.
func (s *RedisPlayerStore) GetQueue(ctx context.Context, guildID snowflake.ID) ([]model.QueueEntry, error) {
	result, err := s.rdb.ZRangeByScore(ctx, queueKey(guildID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.QueueEntry{}, nil
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	entries := make([]model.QueueEntry, 0, len(result))
	for _, raw := range result {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// SetQueue atomically replaces the queue for a guild. Callers must have
// renumbered entry indices before calling.
func (s *RedisPlayerStore) SetQueue(ctx context.Context, guildID snowflake.ID, entries []model.QueueEntry) error {
	key := queueKey(guildID)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal queue entry: %w", err)
		}
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(entry.Index),
			Member: raw,
		})
	}
	pipe.Expire(ctx, key, playerStateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace queue: %w", err)
	}
	return nil
}

// GetCurrentTrack returns the currently playing entry, or nil if nothing is
// playing.
func (s *RedisPlayerStore) GetCurrentTrack(ctx context.Context, guildID snowflake.ID) (*model.QueueEntry, error) {
	raw, err := s.rdb.Get(ctx, currentTrackKey(guildID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current track: %w", err)
	}

	var entry model.QueueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current track: %w", err)
	}
	return &entry, nil
}

// SetCurrentTrack stores the currently playing entry.
func (s *RedisPlayerStore) SetCurrentTrack(ctx context.Context, guildID snowflake.ID, entry model.QueueEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal current track: %w", err)
	}
	if err := s.rdb.Set(ctx, currentTrackKey(guildID), raw, playerStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set current track: %w", err)
	}
	return nil
}

// ClearCurrentTrack removes the currently playing entry. Clearing a guild
// that has none is not an error.
func (s *RedisPlayerStore) ClearCurrentTrack(ctx context.Context, guildID snowflake.ID) error {
	if err := s.rdb.Del(ctx, currentTrackKey(guildID)).Err(); err != nil {
		return fmt.Errorf("failed to clear current track: %w", err)
	}
	return nil
}

// GetSettings returns the cached settings for a guild, or nil if the guild
// has none cached. Callers fall back to the settings repository or defaults.
func (s *RedisPlayerStore) GetSettings(ctx context.Context, guildID snowflake.ID) (*model.PlayerSettings, error) {
	raw, err := s.rdb.Get(ctx, settingsKey(guildID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var settings model.PlayerSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

// SetSettings stores the settings for a guild.
func (s *RedisPlayerStore) SetSettings(ctx context.Context, guildID snowflake.ID, settings model.PlayerSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.rdb.Set(ctx, settingsKey(guildID), raw, playerStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}
	return nil
}

// Reset removes all player state for a guild.
func (s *RedisPlayerStore) Reset(ctx context.Context, guildID snowflake.ID) error {
	keys := []string{queueKey(guildID), currentTrackKey(guildID), settingsKey(guildID)}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset player state: %w", err)
	}
	return nil
}
