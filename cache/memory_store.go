package cache

import (
	"context"
	"sync"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
)

// guildState is the in-process player state for one guild. Each guild has
// its own lock so concurrent requests for different guilds never contend.
type guildState struct {
	mu       sync.RWMutex
	queue    []model.QueueEntry
	current  *model.QueueEntry
	settings *model.PlayerSettings
}

// MemoryPlayerStore is an in-process player state store. It backs tests and
// deployments without Redis.
type MemoryPlayerStore struct {
	mu     sync.RWMutex
	guilds map[snowflake.ID]*guildState
}

// NewMemoryPlayerStore creates an empty in-process player store.
func NewMemoryPlayerStore() *MemoryPlayerStore {
	return &MemoryPlayerStore{guilds: make(map[snowflake.ID]*guildState)}
}

func (s *MemoryPlayerStore) guild(guildID snowflake.ID) *guildState {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.guilds[guildID]; !ok {
		g = &guildState{}
		s.guilds[guildID] = g
	}
	return g
}

// GetQueue returns a copy of the ordered queue for a guild. A guild without
// a queue yields an empty slice.
func (s *MemoryPlayerStore) GetQueue(ctx context.Context, guildID snowflake.ID) ([]model.QueueEntry, error) {
	g := s.guild(guildID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	queue := make([]model.QueueEntry, len(g.queue))
	copy(queue, g.queue)
	return queue, nil
}

// SetQueue replaces the queue for a guild.
func (s *MemoryPlayerStore) SetQueue(ctx context.Context, guildID snowflake.ID, entries []model.QueueEntry) error {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.queue = make([]model.QueueEntry, len(entries))
	copy(g.queue, entries)
	return nil
}

// GetCurrentTrack returns the currently playing entry, or nil.
func (s *MemoryPlayerStore) GetCurrentTrack(ctx context.Context, guildID snowflake.ID) (*model.QueueEntry, error) {
	g := s.guild(guildID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.current == nil {
		return nil, nil
	}
	entry := *g.current
	return &entry, nil
}

// SetCurrentTrack stores the currently playing entry.
func (s *MemoryPlayerStore) SetCurrentTrack(ctx context.Context, guildID snowflake.ID, entry model.QueueEntry) error {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = &entry
	return nil
}

// ClearCurrentTrack removes the currently playing entry.
func (s *MemoryPlayerStore) ClearCurrentTrack(ctx context.Context, guildID snowflake.ID) error {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = nil
	return nil
}

// GetSettings returns the stored settings for a guild, or nil if unset.
func (s *MemoryPlayerStore) GetSettings(ctx context.Context, guildID snowflake.ID) (*model.PlayerSettings, error) {
	g := s.guild(guildID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.settings == nil {
		return nil, nil
	}
	settings := *g.settings
	return &settings, nil
}

// SetSettings stores the settings for a guild.
func (s *MemoryPlayerStore) SetSettings(ctx context.Context, guildID snowflake.ID, settings model.PlayerSettings) error {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.settings = &settings
	return nil
}

// Reset removes all player state for a guild.
func (s *MemoryPlayerStore) Reset(ctx context.Context, guildID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.guilds, guildID)
	return nil
}
