package player

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"Resona/core/engine"
	"Resona/logger"
	"Resona/model"
	"Resona/repository"

	"github.com/disgoorg/snowflake/v2"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 25
)

// Broadcaster pushes a status snapshot to every subscriber of a guild.
type Broadcaster interface {
	BroadcastStatus(guildID snowflake.ID, status model.PlayerStatus)
}

// Service orchestrates the player store, the audio engine and the push
// layer. One instance serves all guilds.
type Service struct {
	store  Store
	engine engine.Engine
	repo   repository.SettingsRepository // nil when persistence is disabled
	hub    Broadcaster                   // nil in tests without a push layer
}

// NewService wires the orchestration layer and registers the queue
// progression callback on the engine.
func NewService(store Store, eng engine.Engine, repo repository.SettingsRepository, hub Broadcaster) *Service {
	s := &Service{
		store:  store,
		engine: eng,
		repo:   repo,
		hub:    hub,
	}
	eng.SetTrackEndHandler(s.handleTrackEnd)
	return s
}

// Status returns the snapshot for a guild with an active player.
func (s *Service) Status(ctx context.Context, guildID snowflake.ID) (*model.PlayerStatus, error) {
	if !s.engine.HasPlayer(guildID) {
		return nil, engine.ErrNoPlayer
	}
	return s.snapshot(ctx, guildID)
}

// Search runs a platform search. limit is clamped to [1,25], 0 means the
// default of 10.
func (s *Service) Search(ctx context.Context, query string, mode string, limit int) ([]model.Track, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.engine.Search(ctx, query, engine.ParseSearchMode(mode), limit)
}

// Extract resolves a URL to track metadata without queueing anything.
func (s *Service) Extract(ctx context.Context, url string) (*model.Track, error) {
	return s.engine.Load(ctx, url)
}

// Play loads the URL, appends it to the guild queue and starts playback if
// nothing is playing yet.
func (s *Service) Play(ctx context.Context, guildID snowflake.ID, url string, requester model.Requester) (*model.QueueEntry, error) {
	if !s.engine.HasPlayer(guildID) {
		return nil, engine.ErrNoPlayer
	}

	track, err := s.engine.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	if track.Provider == model.ProviderNone {
		track.Provider = model.ProviderFromURL(url)
	}

	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	entry := model.QueueEntry{Index: len(queue), Track: *track, Requester: requester}
	queue = append(queue, entry)
	if err := s.store.SetQueue(ctx, guildID, queue); err != nil {
		return nil, fmt.Errorf("failed to store queue: %w", err)
	}

	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current track: %w", err)
	}
	if current == nil {
		if err := s.startEntry(ctx, guildID, entry); err != nil {
			return nil, err
		}
	}

	s.broadcast(ctx, guildID)
	return &entry, nil
}

// PlayTrackAt jumps playback to the queue entry at the given index.
func (s *Service) PlayTrackAt(ctx context.Context, guildID snowflake.ID, index int) error {
	if !s.engine.HasPlayer(guildID) {
		return engine.ErrNoPlayer
	}
	if err := s.playIndex(ctx, guildID, index); err != nil {
		return err
	}
	s.broadcast(ctx, guildID)
	return nil
}

// PauseResume toggles playback and returns the resulting state.
func (s *Service) PauseResume(ctx context.Context, guildID snowflake.ID) (model.PlayerState, error) {
	status, err := s.engine.Status(guildID)
	if err != nil {
		return "", err
	}

	if status.State == model.StatePlaying {
		if err := s.engine.Pause(ctx, guildID); err != nil {
			return "", err
		}
		s.broadcast(ctx, guildID)
		return model.StatePaused, nil
	}

	if err := s.engine.Resume(ctx, guildID); err != nil {
		return "", err
	}
	s.broadcast(ctx, guildID)
	return model.StatePlaying, nil
}

// Queue returns the guild's queue in index order.
func (s *Service) Queue(ctx context.Context, guildID snowflake.ID) ([]model.QueueEntry, error) {
	return s.store.GetQueue(ctx, guildID)
}

// ClearQueue drops every queued entry except the one currently playing,
// which becomes the sole index-0 entry.
func (s *Service) ClearQueue(ctx context.Context, guildID snowflake.ID) error {
	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read current track: %w", err)
	}

	var queue []model.QueueEntry
	if current != nil {
		current.Index = 0
		queue = []model.QueueEntry{*current}
		if err := s.store.SetCurrentTrack(ctx, guildID, *current); err != nil {
			return fmt.Errorf("failed to store current track: %w", err)
		}
	}
	if err := s.store.SetQueue(ctx, guildID, queue); err != nil {
		return fmt.Errorf("failed to store queue: %w", err)
	}

	s.broadcast(ctx, guildID)
	return nil
}

// RemoveTrack deletes one queue entry and renumbers the rest. Removing the
// playing entry advances playback to the entry that takes its place, or
// stops when it was last.
func (s *Service) RemoveTrack(ctx context.Context, guildID snowflake.ID, index int) error {
	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	pos := -1
	for i, entry := range queue {
		if entry.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ErrTrackNotFound
	}

	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read current track: %w", err)
	}
	wasCurrent := current != nil && current.Index == index

	queue = append(queue[:pos], queue[pos+1:]...)
	for i := range queue {
		queue[i].Index = i
	}
	if err := s.store.SetQueue(ctx, guildID, queue); err != nil {
		return fmt.Errorf("failed to store queue: %w", err)
	}

	if wasCurrent {
		if pos < len(queue) {
			if err := s.playIndex(ctx, guildID, pos); err != nil {
				return err
			}
		} else if err := s.stopPlayback(ctx, guildID); err != nil {
			return err
		}
	} else if current != nil && current.Index > index {
		// playing entry shifted down with the renumbering
		current.Index--
		if err := s.store.SetCurrentTrack(ctx, guildID, *current); err != nil {
			return fmt.Errorf("failed to store current track: %w", err)
		}
	}

	s.broadcast(ctx, guildID)
	return nil
}

// SetVolume applies a volume to the live player and persists it as the
// guild default.
func (s *Service) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	if volume < 0 || volume > 100 {
		return ErrVolumeRange
	}

	if s.engine.HasPlayer(guildID) {
		if err := s.engine.SetVolume(ctx, guildID, volume); err != nil {
			return err
		}
	}

	settings := s.settings(ctx, guildID)
	settings.Volume = volume
	if err := s.saveSettings(ctx, guildID, settings); err != nil {
		return err
	}

	s.broadcast(ctx, guildID)
	return nil
}

// Seek jumps to a position in the current track, given in seconds.
func (s *Service) Seek(ctx context.Context, guildID snowflake.ID, seconds float64) error {
	if err := s.engine.Seek(ctx, guildID, time.Duration(seconds*float64(time.Second))); err != nil {
		return err
	}
	s.broadcast(ctx, guildID)
	return nil
}

// Skip advances to the next queue entry. At the end of the queue it wraps
// when repeat mode is queue, otherwise playback stops.
func (s *Service) Skip(ctx context.Context, guildID snowflake.ID) error {
	if !s.engine.HasPlayer(guildID) {
		return engine.ErrNoPlayer
	}

	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read current track: %w", err)
	}
	if current == nil {
		return ErrTrackNotFound
	}

	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	next := current.Index + 1
	if next >= len(queue) {
		if s.settings(ctx, guildID).RepeatMode == model.RepeatQueue && len(queue) > 0 {
			next = 0
		} else {
			if err := s.stopPlayback(ctx, guildID); err != nil {
				return err
			}
			s.broadcast(ctx, guildID)
			return nil
		}
	}

	if err := s.playIndex(ctx, guildID, next); err != nil {
		return err
	}
	s.broadcast(ctx, guildID)
	return nil
}

// Previous steps back to the preceding queue entry, wrapping to the last
// entry when repeat mode is queue.
func (s *Service) Previous(ctx context.Context, guildID snowflake.ID) error {
	if !s.engine.HasPlayer(guildID) {
		return engine.ErrNoPlayer
	}

	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read current track: %w", err)
	}
	if current == nil {
		return ErrTrackNotFound
	}

	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	prev := current.Index - 1
	if prev < 0 {
		if s.settings(ctx, guildID).RepeatMode == model.RepeatQueue && len(queue) > 0 {
			prev = len(queue) - 1
		} else {
			return ErrTrackNotFound
		}
	}

	if err := s.playIndex(ctx, guildID, prev); err != nil {
		return err
	}
	s.broadcast(ctx, guildID)
	return nil
}

// Shuffle permutes the upcoming entries. The playing entry is pinned at
// index 0 and the rest are renumbered from 1. Queues of one entry or less
// are left untouched.
func (s *Service) Shuffle(ctx context.Context, guildID snowflake.ID) error {
	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	if len(queue) <= 1 {
		return nil
	}

	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read current track: %w", err)
	}

	rest := make([]model.QueueEntry, 0, len(queue))
	for _, entry := range queue {
		if current != nil && entry.Index == current.Index {
			continue
		}
		rest = append(rest, entry)
	}

	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	shuffled := make([]model.QueueEntry, 0, len(queue))
	next := 0
	if current != nil {
		current.Index = 0
		shuffled = append(shuffled, *current)
		if err := s.store.SetCurrentTrack(ctx, guildID, *current); err != nil {
			return fmt.Errorf("failed to store current track: %w", err)
		}
		next = 1
	}
	for _, entry := range rest {
		entry.Index = next
		shuffled = append(shuffled, entry)
		next++
	}

	if err := s.store.SetQueue(ctx, guildID, shuffled); err != nil {
		return fmt.Errorf("failed to store queue: %w", err)
	}

	s.broadcast(ctx, guildID)
	return nil
}

// SetRepeatMode updates the guild's repeat mode. Accepts the mode names and
// their numeric aliases.
func (s *Service) SetRepeatMode(ctx context.Context, guildID snowflake.ID, mode string) (model.RepeatMode, error) {
	parsed, ok := model.ParseRepeatMode(mode)
	if !ok {
		return "", ErrBadRepeatMode
	}

	settings := s.settings(ctx, guildID)
	settings.RepeatMode = parsed
	if err := s.saveSettings(ctx, guildID, settings); err != nil {
		return "", err
	}

	s.broadcast(ctx, guildID)
	return parsed, nil
}

// Settings returns the guild's player settings, falling back to persisted
// values and then defaults.
func (s *Service) Settings(ctx context.Context, guildID snowflake.ID) (model.PlayerSettings, error) {
	return s.settings(ctx, guildID), nil
}

// UpdateSettings replaces the guild's player settings.
func (s *Service) UpdateSettings(ctx context.Context, guildID snowflake.ID, settings model.PlayerSettings) error {
	if settings.Volume < 0 || settings.Volume > 100 {
		return ErrVolumeRange
	}
	if _, ok := model.ParseRepeatMode(string(settings.RepeatMode)); !ok {
		return ErrBadRepeatMode
	}

	settings.GuildID = guildID
	if err := s.saveSettings(ctx, guildID, settings); err != nil {
		return err
	}

	s.broadcast(ctx, guildID)
	return nil
}

// ToggleFilter flips one named filter and commits the resulting filter set
// to the engine.
func (s *Service) ToggleFilter(ctx context.Context, guildID snowflake.ID, name string, enable bool) (model.FilterStatus, error) {
	if !s.engine.HasPlayer(guildID) {
		return model.FilterStatus{}, engine.ErrNoPlayer
	}

	status, err := engine.ToggleFilter(s.engine.ActiveFilters(guildID), name, enable)
	if err != nil {
		return model.FilterStatus{}, err
	}
	if err := s.engine.ApplyFilters(ctx, guildID, status); err != nil {
		return model.FilterStatus{}, err
	}

	s.broadcast(ctx, guildID)
	return status, nil
}

// Reset stops playback and drops all player state for a guild.
func (s *Service) Reset(ctx context.Context, guildID snowflake.ID) error {
	if s.engine.HasPlayer(guildID) {
		if err := s.engine.Stop(ctx, guildID); err != nil {
			return err
		}
	}
	if err := s.store.Reset(ctx, guildID); err != nil {
		return err
	}
	s.broadcast(ctx, guildID)
	return nil
}

// Snapshot computes the status view without requiring an active player.
// Used for the hello frame on new push subscriptions.
func (s *Service) Snapshot(ctx context.Context, guildID snowflake.ID) (*model.PlayerStatus, error) {
	return s.snapshot(ctx, guildID)
}

func (s *Service) snapshot(ctx context.Context, guildID snowflake.ID) (*model.PlayerStatus, error) {
	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current track: %w", err)
	}
	settings := s.settings(ctx, guildID)

	status := model.PlayerStatus{
		CurrentTrack: current,
		Queue:        queue,
		State:        model.StateStopped,
		Volume:       settings.Volume,
		RepeatMode:   settings.RepeatMode,
		Filters:      s.engine.ActiveFilters(guildID),
	}

	if engineStatus, err := s.engine.Status(guildID); err == nil {
		status.State = engineStatus.State
		status.Position = engineStatus.Position
		if engineStatus.Volume > 0 {
			status.Volume = engineStatus.Volume
		}
	}

	return &status, nil
}

// playIndex starts the queue entry with the given index and marks it
// current.
func (s *Service) playIndex(ctx context.Context, guildID snowflake.ID, index int) error {
	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	for _, entry := range queue {
		if entry.Index == index {
			return s.startEntry(ctx, guildID, entry)
		}
	}
	return ErrTrackNotFound
}

func (s *Service) startEntry(ctx context.Context, guildID snowflake.ID, entry model.QueueEntry) error {
	if err := s.engine.Play(ctx, guildID, entry.Track); err != nil {
		return err
	}
	if err := s.store.SetCurrentTrack(ctx, guildID, entry); err != nil {
		return fmt.Errorf("failed to store current track: %w", err)
	}
	return nil
}

func (s *Service) stopPlayback(ctx context.Context, guildID snowflake.ID) error {
	if err := s.engine.Stop(ctx, guildID); err != nil {
		return err
	}
	if err := s.store.ClearCurrentTrack(ctx, guildID); err != nil {
		return fmt.Errorf("failed to clear current track: %w", err)
	}
	return nil
}

// settings reads the guild settings from the cache, then the repository,
// then defaults. Repository hits are written back to the cache.
func (s *Service) settings(ctx context.Context, guildID snowflake.ID) model.PlayerSettings {
	cached, err := s.store.GetSettings(ctx, guildID)
	if err == nil && cached != nil {
		return *cached
	}
	if err != nil {
		logger.Warn("failed to read cached settings", logger.ErrorField(err), logger.Guild(guildID))
	}

	if s.repo != nil {
		persisted, err := s.repo.Get(ctx, guildID)
		if err != nil {
			logger.Warn("failed to read persisted settings", logger.ErrorField(err), logger.Guild(guildID))
		} else if persisted != nil {
			if err := s.store.SetSettings(ctx, guildID, *persisted); err != nil {
				logger.Warn("failed to cache settings", logger.ErrorField(err), logger.Guild(guildID))
			}
			return *persisted
		}
	}

	return model.DefaultSettings(guildID)
}

func (s *Service) saveSettings(ctx context.Context, guildID snowflake.ID, settings model.PlayerSettings) error {
	settings.GuildID = guildID
	if err := s.store.SetSettings(ctx, guildID, settings); err != nil {
		return fmt.Errorf("failed to cache settings: %w", err)
	}
	if s.repo != nil {
		if err := s.repo.Upsert(ctx, settings); err != nil {
			return fmt.Errorf("failed to persist settings: %w", err)
		}
	}
	return nil
}

// broadcast pushes a fresh snapshot to the guild's subscribers. Failures
// never propagate to the request that caused the state change.
func (s *Service) broadcast(ctx context.Context, guildID snowflake.ID) {
	if s.hub == nil {
		return
	}
	status, err := s.snapshot(ctx, guildID)
	if err != nil {
		logger.Warn("failed to build broadcast snapshot", logger.ErrorField(err), logger.Guild(guildID))
		return
	}
	s.hub.BroadcastStatus(guildID, *status)
}

// handleTrackEnd runs queue progression when the engine reports a track
// finishing on its own. Aborted tracks (stop, replace, errors) do not
// progress the queue.
func (s *Service) handleTrackEnd(guildID snowflake.ID, finished bool) {
	if !finished {
		return
	}

	ctx := context.Background()
	current, err := s.store.GetCurrentTrack(ctx, guildID)
	if err != nil || current == nil {
		return
	}

	settings := s.settings(ctx, guildID)
	if settings.RepeatMode == model.RepeatTrack {
		if err := s.startEntry(ctx, guildID, *current); err != nil {
			logger.Error("failed to repeat track", logger.ErrorField(err), logger.Guild(guildID))
		}
		s.broadcast(ctx, guildID)
		return
	}

	queue, err := s.store.GetQueue(ctx, guildID)
	if err != nil {
		logger.Error("failed to read queue on track end", logger.ErrorField(err), logger.Guild(guildID))
		return
	}

	next := current.Index + 1
	if next >= len(queue) {
		if settings.RepeatMode == model.RepeatQueue && len(queue) > 0 {
			next = 0
		} else {
			if err := s.store.ClearCurrentTrack(ctx, guildID); err != nil {
				logger.Error("failed to clear current track", logger.ErrorField(err), logger.Guild(guildID))
			}
			s.broadcast(ctx, guildID)
			return
		}
	}

	if err := s.playIndex(ctx, guildID, next); err != nil {
		logger.Error("failed to advance queue", logger.ErrorField(err), logger.Guild(guildID))
		return
	}
	s.broadcast(ctx, guildID)
}
