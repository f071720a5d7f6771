package model

// PlayerState is the coarse engine playback state.
type PlayerState string

const (
	StatePlaying PlayerState = "playing"
	StatePaused  PlayerState = "paused"
	StateStopped PlayerState = "stopped"
)

// FilterStatus reports which named audio filters are active on a player.
type FilterStatus struct {
	Bass       bool `json:"bass"`
	Nightcore  bool `json:"nightcore"`
	Vaporwave  bool `json:"vaporwave"`
	Karaoke    bool `json:"karaoke"`
	Tremolo    bool `json:"tremolo"`
	Vibrato    bool `json:"vibrato"`
	Rotation   bool `json:"rotation"`
	Distortion bool `json:"distortion"`
	ChannelMix bool `json:"channelMix"`
}

// PlayerStatus is a point-in-time snapshot of a guild player, derived on
// demand from the state store and the audio engine. It is never stored.
type PlayerStatus struct {
	CurrentTrack   *QueueEntry  `json:"currentTrack"`
	Queue          []QueueEntry `json:"queue"`
	State          PlayerState  `json:"state"`
	Volume         int          `json:"volume"`
	Position       int64        `json:"position"` // milliseconds into the current track
	RepeatMode     RepeatMode   `json:"repeatMode"`
	Filters        FilterStatus `json:"filters"`
	InVoiceChannel bool         `json:"inVoiceChannel"` // requesting user shares the bot's voice channel
}
