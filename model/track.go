package model

import (
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

// Provider identifies the platform a track was resolved from.
type Provider string

const (
	ProviderNone         Provider = "none"
	ProviderYouTube      Provider = "youtube"
	ProviderYouTubeMusic Provider = "youtubemusic"
	ProviderSpotify      Provider = "spotify"
	ProviderSoundCloud   Provider = "soundcloud"
)

// ProviderFromURL resolves the provider by substring matching on the URL.
// Unknown hosts resolve to ProviderNone; the track may still be playable.
func ProviderFromURL(url string) Provider {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "spotify"):
		return ProviderSpotify
	case strings.Contains(lower, "music.youtube"):
		return ProviderYouTubeMusic
	case strings.Contains(lower, "youtube"), strings.Contains(lower, "youtu.be"):
		return ProviderYouTube
	case strings.Contains(lower, "soundcloud"):
		return ProviderSoundCloud
	default:
		return ProviderNone
	}
}

// ProviderFromSource maps an audio engine source name to a Provider.
func ProviderFromSource(sourceName string) Provider {
	switch strings.ToLower(sourceName) {
	case "youtube":
		return ProviderYouTube
	case "youtubemusic", "ytmusic":
		return ProviderYouTubeMusic
	case "spotify":
		return ProviderSpotify
	case "soundcloud":
		return ProviderSoundCloud
	default:
		return ProviderNone
	}
}

// Track represents a playable audio track as loaded from the audio engine.
// Tracks are immutable once loaded.
type Track struct {
	Encoded    string   `json:"encoded"` // engine-encoded track blob used for playback
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Duration   int64    `json:"duration"` // milliseconds
	URI        string   `json:"uri"`
	ArtworkURL string   `json:"artworkUrl,omitempty"`
	Provider   Provider `json:"provider"`
	IsStream   bool     `json:"isStream,omitempty"`
}

// Requester is the user who asked for a track to be queued.
type Requester struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	AvatarURL string       `json:"avatarUrl,omitempty"`
}

// QueueEntry wraps a Track with its position in the guild queue and the
// user who requested it. Index 0 conventionally denotes the entry that is
// currently playing.
type QueueEntry struct {
	Index     int       `json:"index"`
	Track     Track     `json:"track"`
	Requester Requester `json:"requester"`
}
