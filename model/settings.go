package model

import "github.com/disgoorg/snowflake/v2"

// RepeatMode controls queue progression when a track finishes.
type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatTrack RepeatMode = "track"
	RepeatQueue RepeatMode = "queue"
)

// ParseRepeatMode accepts both the textual names and their numeric aliases
// (off/0, track/1, queue/2). The second return value reports whether the
// input was a valid mode.
func ParseRepeatMode(s string) (RepeatMode, bool) {
	switch s {
	case "off", "0":
		return RepeatOff, true
	case "track", "1":
		return RepeatTrack, true
	case "queue", "2":
		return RepeatQueue, true
	default:
		return RepeatOff, false
	}
}

// DefaultVolume is applied to guilds that never stored a volume.
const DefaultVolume = 100

// PlayerSettings are the per-guild playback preferences. Exactly one record
// exists per guild, created lazily on first access.
type PlayerSettings struct {
	GuildID    snowflake.ID `json:"guildId"`
	Volume     int          `json:"volume"`
	RepeatMode RepeatMode   `json:"repeatMode"`
}

// DefaultSettings returns the lazily-created settings for a guild that has
// never stored any.
func DefaultSettings(guildID snowflake.ID) PlayerSettings {
	return PlayerSettings{
		GuildID:    guildID,
		Volume:     DefaultVolume,
		RepeatMode: RepeatOff,
	}
}
