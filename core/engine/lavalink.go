package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Resona/logger"
	"Resona/model"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
)

// NodeConfig holds the connection settings for one Lavalink node.
type NodeConfig struct {
	Name     string
	Address  string
	Password string
	Secure   bool
}

// LavalinkEngine implements Engine over a Lavalink node via disgolink.
type LavalinkEngine struct {
	link disgolink.Client

	mu         sync.RWMutex
	onTrackEnd TrackEndHandler
}

// NewLavalinkEngine connects to the configured Lavalink node and returns the
// engine adapter. botID must be the gateway user the node plays audio for.
func NewLavalinkEngine(ctx context.Context, botID snowflake.ID, cfg NodeConfig) (*LavalinkEngine, error) {
	e := &LavalinkEngine{}

	e.link = disgolink.New(botID,
		disgolink.WithListenerFunc(e.handleTrackStart),
		disgolink.WithListenerFunc(e.handleTrackEnd),
		disgolink.WithListenerFunc(e.handleTrackException),
		disgolink.WithListenerFunc(e.handleTrackStuck),
	)

	node, err := e.link.AddNode(ctx, disgolink.NodeConfig{
		Name:     cfg.Name,
		Address:  cfg.Address,
		Password: cfg.Password,
		Secure:   cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	logger.Info("connected to Lavalink node",
		logger.String("node", node.Config().Name),
		logger.String("address", cfg.Address))

	return e, nil
}

// HasPlayer reports whether the guild has an active player session.
func (e *LavalinkEngine) HasPlayer(guildID snowflake.ID) bool {
	return e.link.ExistingPlayer(guildID) != nil
}

// Status returns the engine-side playback state for a guild.
func (e *LavalinkEngine) Status(guildID snowflake.ID) (Status, error) {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return Status{}, ErrNoPlayer
	}

	state := model.StateStopped
	if player.Track() != nil {
		if player.Paused() {
			state = model.StatePaused
		} else {
			state = model.StatePlaying
		}
	}

	return Status{
		State:    state,
		Position: player.Position().Milliseconds(),
		Volume:   player.Volume(),
	}, nil
}

var searchPrefixes = map[SearchMode]string{
	SearchYouTube:      "ytsearch",
	SearchYouTubeMusic: "ytmsearch",
	SearchSoundCloud:   "scsearch",
	SearchSpotify:      "spsearch",
}

// Search runs a platform search and returns up to limit tracks.
func (e *LavalinkEngine) Search(ctx context.Context, query string, mode SearchMode, limit int) ([]model.Track, error) {
	node := e.link.BestNode()
	if node == nil {
		return nil, ErrNoNode
	}

	prefix, ok := searchPrefixes[mode]
	if !ok {
		prefix = searchPrefixes[SearchYouTube]
	}

	result, err := node.LoadTracks(ctx, fmt.Sprintf("%s:%s", prefix, query))
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}

	var tracks []model.Track
	switch data := result.Data.(type) {
	case lavalink.Search:
		for _, track := range data {
			tracks = append(tracks, convertTrack(track))
		}
	case lavalink.Track:
		tracks = append(tracks, convertTrack(data))
	case lavalink.Playlist:
		for _, track := range data.Tracks {
			tracks = append(tracks, convertTrack(track))
		}
	}

	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// Load resolves a URL to a single track. Playlists resolve to their first
// track.
func (e *LavalinkEngine) Load(ctx context.Context, url string) (*model.Track, error) {
	node := e.link.BestNode()
	if node == nil {
		return nil, ErrNoNode
	}

	result, err := node.LoadTracks(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to load track: %w", err)
	}

	switch data := result.Data.(type) {
	case lavalink.Track:
		track := convertTrack(data)
		return &track, nil
	case lavalink.Playlist:
		if len(data.Tracks) > 0 {
			track := convertTrack(data.Tracks[0])
			return &track, nil
		}
	case lavalink.Search:
		if len(data) > 0 {
			track := convertTrack(data[0])
			return &track, nil
		}
	}

	return nil, ErrTrackLoad
}

// Play starts playback of a track on the guild player.
func (e *LavalinkEngine) Play(ctx context.Context, guildID snowflake.ID, track model.Track) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithEncodedTrack(track.Encoded)); err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}
	return nil
}

// Stop halts playback without destroying the player session.
func (e *LavalinkEngine) Stop(ctx context.Context, guildID snowflake.ID) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithNullTrack()); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}

// Pause pauses playback.
func (e *LavalinkEngine) Pause(ctx context.Context, guildID snowflake.ID) error {
	return e.setPaused(ctx, guildID, true)
}

// Resume resumes playback.
func (e *LavalinkEngine) Resume(ctx context.Context, guildID snowflake.ID) error {
	return e.setPaused(ctx, guildID, false)
}

func (e *LavalinkEngine) setPaused(ctx context.Context, guildID snowflake.ID, paused bool) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithPaused(paused)); err != nil {
		return fmt.Errorf("failed to set paused=%t: %w", paused, err)
	}
	return nil
}

// Seek jumps to a position in the current track.
func (e *LavalinkEngine) Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithPosition(lavalink.Duration(position.Milliseconds()))); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// SetVolume applies a volume to the live player.
func (e *LavalinkEngine) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithVolume(volume)); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

// ApplyFilters commits the full filter set derived from the flags.
func (e *LavalinkEngine) ApplyFilters(ctx context.Context, guildID snowflake.ID, filters model.FilterStatus) error {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return ErrNoPlayer
	}

	if err := player.Update(ctx, lavalink.WithFilters(buildFilters(filters))); err != nil {
		return fmt.Errorf("failed to apply filters: %w", err)
	}
	return nil
}

// ActiveFilters reports which filters are currently active on the player.
// A guild without a player has none.
func (e *LavalinkEngine) ActiveFilters(guildID snowflake.ID) model.FilterStatus {
	player := e.link.ExistingPlayer(guildID)
	if player == nil {
		return model.FilterStatus{}
	}
	return filterStatusOf(player.Filters())
}

// SetTrackEndHandler registers the queue-progression callback.
func (e *LavalinkEngine) SetTrackEndHandler(handler TrackEndHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackEnd = handler
}

// OnVoiceServerUpdate forwards a gateway voice server update to Lavalink.
func (e *LavalinkEngine) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		logger.Error("failed to parse guild id in voice server update", logger.ErrorField(err))
		return
	}

	e.link.OnVoiceServerUpdate(context.Background(), guildID, event.Token, event.Endpoint)
}

// OnVoiceStateUpdate forwards the bot's own gateway voice state updates to
// Lavalink. Updates for other users are ignored.
func (e *LavalinkEngine) OnVoiceStateUpdate(botID snowflake.ID, event *discordgo.VoiceStateUpdate) {
	if event.UserID != botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		logger.Error("failed to parse guild id in voice state update", logger.ErrorField(err))
		return
	}

	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			logger.Error("failed to parse channel id in voice state update", logger.ErrorField(err))
			return
		}
		channelID = &id
	}

	e.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, event.SessionID)
}

func (e *LavalinkEngine) handleTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	logger.Debug("track started",
		logger.Guild(player.GuildID()),
		logger.String("track", event.Track.Info.Title))
}

func (e *LavalinkEngine) handleTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	logger.Debug("track ended",
		logger.Guild(player.GuildID()),
		logger.String("reason", string(event.Reason)))

	e.mu.RLock()
	handler := e.onTrackEnd
	e.mu.RUnlock()

	if handler != nil {
		handler(player.GuildID(), event.Reason == lavalink.TrackEndReasonFinished)
	}
}

func (e *LavalinkEngine) handleTrackException(player disgolink.Player, event lavalink.TrackExceptionEvent) {
	logger.Warn("track exception",
		logger.Guild(player.GuildID()),
		logger.String("message", event.Exception.Message))
}

func (e *LavalinkEngine) handleTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	logger.Warn("track stuck",
		logger.Guild(player.GuildID()),
		logger.Duration("threshold", time.Duration(event.Threshold)*time.Millisecond))
}

// convertTrack maps an engine track to the API model.
func convertTrack(track lavalink.Track) model.Track {
	info := track.Info

	uri := ""
	if info.URI != nil {
		uri = *info.URI
	}
	artworkURL := ""
	if info.ArtworkURL != nil {
		artworkURL = *info.ArtworkURL
	}

	provider := model.ProviderFromSource(info.SourceName)
	if provider == model.ProviderNone && uri != "" {
		provider = model.ProviderFromURL(uri)
	}

	return model.Track{
		Encoded:    track.Encoded,
		Title:      info.Title,
		Author:     info.Author,
		Duration:   info.Length.Milliseconds(),
		URI:        uri,
		ArtworkURL: artworkURL,
		Provider:   provider,
		IsStream:   info.IsStream,
	}
}

var _ Engine = (*LavalinkEngine)(nil)
