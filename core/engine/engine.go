package engine

import (
	"context"
	"errors"
	"time"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrNoPlayer is returned when a guild has no active player session.
	ErrNoPlayer = errors.New("no active player")
	// ErrNoNode is returned when no audio node is available.
	ErrNoNode = errors.New("no available audio node")
	// ErrTrackLoad is returned when a query or URL cannot be resolved to a track.
	ErrTrackLoad = errors.New("track could not be resolved")
)

// SearchMode selects the platform a search query runs against.
type SearchMode string

const (
	SearchYouTube      SearchMode = "youtube"
	SearchYouTubeMusic SearchMode = "youtubemusic"
	SearchSoundCloud   SearchMode = "soundcloud"
	SearchSpotify      SearchMode = "spotify"
)

// ParseSearchMode maps a query parameter to a SearchMode, defaulting to
// YouTube for anything unrecognized.
func ParseSearchMode(s string) SearchMode {
	switch s {
	case string(SearchYouTubeMusic):
		return SearchYouTubeMusic
	case string(SearchSoundCloud):
		return SearchSoundCloud
	case string(SearchSpotify):
		return SearchSpotify
	default:
		return SearchYouTube
	}
}

// Status is the engine-side view of a guild player.
type Status struct {
	State    model.PlayerState
	Position int64 // milliseconds into the current track
	Volume   int
}

// TrackEndHandler is invoked when a track finishes on the engine. finished
// is false for ends caused by stop or replacement, which must not trigger
// queue progression.
type TrackEndHandler func(guildID snowflake.ID, finished bool)

// Engine is the narrow interface over the external audio playback engine.
// All playback authority lives behind it; the control-plane only stores
// display state and issues commands.
type Engine interface {
	HasPlayer(guildID snowflake.ID) bool
	Status(guildID snowflake.ID) (Status, error)

	Search(ctx context.Context, query string, mode SearchMode, limit int) ([]model.Track, error)
	Load(ctx context.Context, url string) (*model.Track, error)

	Play(ctx context.Context, guildID snowflake.ID, track model.Track) error
	Stop(ctx context.Context, guildID snowflake.ID) error
	Pause(ctx context.Context, guildID snowflake.ID) error
	Resume(ctx context.Context, guildID snowflake.ID) error
	Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error
	SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error

	ApplyFilters(ctx context.Context, guildID snowflake.ID, filters model.FilterStatus) error
	ActiveFilters(guildID snowflake.ID) model.FilterStatus

	SetTrackEndHandler(handler TrackEndHandler)
}
