package player

import (
	"context"
	"fmt"
	"testing"
	"time"

	"Resona/cache"
	"Resona/core/engine"
	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = snowflake.ID(81384788765712384)

// fakeEngine is an in-memory Engine for exercising the orchestration layer.
type fakeEngine struct {
	players  map[snowflake.ID]bool
	playing  map[snowflake.ID]*model.Track
	paused   map[snowflake.ID]bool
	volumes  map[snowflake.ID]int
	filters  map[snowflake.ID]model.FilterStatus
	tracks   map[string]model.Track
	onEnd    engine.TrackEndHandler
	playErrs int
}

func newFakeEngine(guilds ...snowflake.ID) *fakeEngine {
	e := &fakeEngine{
		players: make(map[snowflake.ID]bool),
		playing: make(map[snowflake.ID]*model.Track),
		paused:  make(map[snowflake.ID]bool),
		volumes: make(map[snowflake.ID]int),
		filters: make(map[snowflake.ID]model.FilterStatus),
		tracks:  make(map[string]model.Track),
	}
	for _, g := range guilds {
		e.players[g] = true
	}
	return e
}

func (e *fakeEngine) addTrack(url string, track model.Track) {
	e.tracks[url] = track
}

func (e *fakeEngine) HasPlayer(guildID snowflake.ID) bool {
	return e.players[guildID]
}

func (e *fakeEngine) Status(guildID snowflake.ID) (engine.Status, error) {
	if !e.players[guildID] {
		return engine.Status{}, engine.ErrNoPlayer
	}
	state := model.StateStopped
	if e.playing[guildID] != nil {
		if e.paused[guildID] {
			state = model.StatePaused
		} else {
			state = model.StatePlaying
		}
	}
	return engine.Status{State: state, Volume: e.volumes[guildID]}, nil
}

func (e *fakeEngine) Search(ctx context.Context, query string, mode engine.SearchMode, limit int) ([]model.Track, error) {
	var tracks []model.Track
	for i := 0; i < limit; i++ {
		tracks = append(tracks, model.Track{Title: fmt.Sprintf("%s %d", query, i)})
	}
	return tracks, nil
}

func (e *fakeEngine) Load(ctx context.Context, url string) (*model.Track, error) {
	track, ok := e.tracks[url]
	if !ok {
		return nil, engine.ErrTrackLoad
	}
	return &track, nil
}

func (e *fakeEngine) Play(ctx context.Context, guildID snowflake.ID, track model.Track) error {
	if !e.players[guildID] {
		return engine.ErrNoPlayer
	}
	if e.playErrs > 0 {
		e.playErrs--
		return fmt.Errorf("node unavailable")
	}
	t := track
	e.playing[guildID] = &t
	e.paused[guildID] = false
	return nil
}

func (e *fakeEngine) Stop(ctx context.Context, guildID snowflake.ID) error {
	if !e.players[guildID] {
		return engine.ErrNoPlayer
	}
	e.playing[guildID] = nil
	return nil
}

func (e *fakeEngine) Pause(ctx context.Context, guildID snowflake.ID) error {
	e.paused[guildID] = true
	return nil
}

func (e *fakeEngine) Resume(ctx context.Context, guildID snowflake.ID) error {
	e.paused[guildID] = false
	return nil
}

func (e *fakeEngine) Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error {
	if !e.players[guildID] {
		return engine.ErrNoPlayer
	}
	return nil
}

func (e *fakeEngine) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	if !e.players[guildID] {
		return engine.ErrNoPlayer
	}
	e.volumes[guildID] = volume
	return nil
}

func (e *fakeEngine) ApplyFilters(ctx context.Context, guildID snowflake.ID, filters model.FilterStatus) error {
	e.filters[guildID] = filters
	return nil
}

func (e *fakeEngine) ActiveFilters(guildID snowflake.ID) model.FilterStatus {
	return e.filters[guildID]
}

func (e *fakeEngine) SetTrackEndHandler(handler engine.TrackEndHandler) {
	e.onEnd = handler
}

// finishTrack simulates the engine reporting a natural track end.
func (e *fakeEngine) finishTrack(guildID snowflake.ID) {
	e.playing[guildID] = nil
	if e.onEnd != nil {
		e.onEnd(guildID, true)
	}
}

// recordingHub captures broadcast snapshots.
type recordingHub struct {
	statuses []model.PlayerStatus
}

func (h *recordingHub) BroadcastStatus(guildID snowflake.ID, status model.PlayerStatus) {
	h.statuses = append(h.statuses, status)
}

func newTestService(eng *fakeEngine) (*Service, *recordingHub) {
	hub := &recordingHub{}
	return NewService(cache.NewMemoryPlayerStore(), eng, nil, hub), hub
}

func queueTracks(t *testing.T, s *Service, eng *fakeEngine, guildID snowflake.ID, n int) []model.QueueEntry {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://www.youtube.com/watch?v=%d", i)
		eng.addTrack(url, model.Track{Title: fmt.Sprintf("track %d", i), Encoded: fmt.Sprintf("enc%d", i)})
		_, err := s.Play(ctx, guildID, url, model.Requester{ID: 1, Name: "tester"})
		require.NoError(t, err)
	}
	queue, err := s.Queue(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, queue, n)
	return queue
}

func TestPlayStartsIdlePlayer(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, hub := newTestService(eng)
	ctx := context.Background()

	eng.addTrack("https://open.spotify.com/track/x", model.Track{Title: "song"})

	entry, err := s.Play(ctx, testGuild, "https://open.spotify.com/track/x", model.Requester{ID: 1, Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Index)
	assert.Equal(t, model.ProviderSpotify, entry.Track.Provider)

	status, err := s.Status(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.StatePlaying, status.State)
	require.NotNil(t, status.CurrentTrack)
	assert.Equal(t, "song", status.CurrentTrack.Track.Title)

	require.NotEmpty(t, hub.statuses)
	last := hub.statuses[len(hub.statuses)-1]
	require.NotNil(t, last.CurrentTrack)
	assert.Equal(t, "song", last.CurrentTrack.Track.Title)
}

func TestPlayAppendsWhilePlaying(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queue := queueTracks(t, s, eng, testGuild, 3)
	assert.Equal(t, []int{0, 1, 2}, indices(queue))

	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)
}

func TestPlayNoPlayer(t *testing.T) {
	eng := newFakeEngine()
	s, _ := newTestService(eng)

	_, err := s.Play(context.Background(), testGuild, "https://x", model.Requester{})
	assert.ErrorIs(t, err, engine.ErrNoPlayer)
}

func TestPlayUnresolvableTrack(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)

	_, err := s.Play(context.Background(), testGuild, "https://nope", model.Requester{})
	assert.ErrorIs(t, err, engine.ErrTrackLoad)
}

func TestPlayTrackAtMissingIndex(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)

	queueTracks(t, s, eng, testGuild, 2)
	err := s.PlayTrackAt(context.Background(), testGuild, 7)
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestPauseResumeToggles(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 1)

	state, err := s.PauseResume(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, state)

	state, err = s.PauseResume(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.StatePlaying, state)
}

func TestSetVolumeRange(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetVolume(ctx, testGuild, -1), ErrVolumeRange)
	assert.ErrorIs(t, s.SetVolume(ctx, testGuild, 101), ErrVolumeRange)

	settings, err := s.Settings(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultVolume, settings.Volume)

	require.NoError(t, s.SetVolume(ctx, testGuild, 42))
	settings, err = s.Settings(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, 42, settings.Volume)
	assert.Equal(t, 42, eng.volumes[testGuild])
}

func TestShuffleNoOpOnShortQueue(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	require.NoError(t, s.Shuffle(ctx, testGuild))

	before := queueTracks(t, s, eng, testGuild, 1)
	require.NoError(t, s.Shuffle(ctx, testGuild))
	after, err := s.Queue(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestShufflePinsCurrentAtZero(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	before := queueTracks(t, s, eng, testGuild, 6)

	require.NoError(t, s.Shuffle(ctx, testGuild))

	after, err := s.Queue(ctx, testGuild)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indices(after))

	// the playing entry stays at index 0
	assert.Equal(t, before[0].Track.Title, after[0].Track.Title)
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)

	// same multiset of tracks
	assert.ElementsMatch(t, titles(before), titles(after))
}

func TestRemoveTrackRenumbers(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 4)

	require.NoError(t, s.RemoveTrack(ctx, testGuild, 2))
	queue, err := s.Queue(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices(queue))
	assert.Equal(t, []string{"track 0", "track 1", "track 3"}, titles(queue))

	assert.ErrorIs(t, s.RemoveTrack(ctx, testGuild, 9), ErrTrackNotFound)
}

func TestRemoveCurrentAdvances(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 3)

	require.NoError(t, s.RemoveTrack(ctx, testGuild, 0))
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "track 1", current.Track.Title)
	assert.Equal(t, 0, current.Index)
}

func TestRemoveLastCurrentStops(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 1)

	require.NoError(t, s.RemoveTrack(ctx, testGuild, 0))
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Nil(t, eng.playing[testGuild])
}

func TestClearQueueKeepsCurrent(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 3)

	require.NoError(t, s.ClearQueue(ctx, testGuild))
	queue, err := s.Queue(ctx, testGuild)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, 0, queue[0].Index)
	assert.Equal(t, "track 0", queue[0].Track.Title)
}

func TestSkipAndPrevious(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 3)

	require.NoError(t, s.Skip(ctx, testGuild))
	current, _ := s.store.GetCurrentTrack(ctx, testGuild)
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Index)

	require.NoError(t, s.Previous(ctx, testGuild))
	current, _ = s.store.GetCurrentTrack(ctx, testGuild)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)

	// no previous neighbor with repeat off
	assert.ErrorIs(t, s.Previous(ctx, testGuild), ErrTrackNotFound)
}

func TestSkipAtEndStops(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 1)

	require.NoError(t, s.Skip(ctx, testGuild))
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Nil(t, eng.playing[testGuild])
}

func TestSkipWrapsWithRepeatQueue(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 2)
	_, err := s.SetRepeatMode(ctx, testGuild, "queue")
	require.NoError(t, err)

	require.NoError(t, s.Skip(ctx, testGuild))
	require.NoError(t, s.Skip(ctx, testGuild))
	current, _ := s.store.GetCurrentTrack(ctx, testGuild)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)
}

func TestSetRepeatModeAliases(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	mode, err := s.SetRepeatMode(ctx, testGuild, "1")
	require.NoError(t, err)
	assert.Equal(t, model.RepeatTrack, mode)

	settings, err := s.Settings(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.RepeatTrack, settings.RepeatMode)

	_, err = s.SetRepeatMode(ctx, testGuild, "forever")
	assert.ErrorIs(t, err, ErrBadRepeatMode)
}

func TestSettingsIdempotentReads(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	first, err := s.Settings(ctx, testGuild)
	require.NoError(t, err)
	second, err := s.Settings(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestToggleFilterUnknown(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)

	_, err := s.ToggleFilter(context.Background(), testGuild, "reverb", true)
	assert.ErrorIs(t, err, engine.ErrUnknownFilter)
}

func TestToggleFilterCommitsToEngine(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	status, err := s.ToggleFilter(ctx, testGuild, engine.FilterBass, true)
	require.NoError(t, err)
	assert.True(t, status.Bass)
	assert.True(t, eng.filters[testGuild].Bass)

	status, err = s.ToggleFilter(ctx, testGuild, engine.FilterBass, false)
	require.NoError(t, err)
	assert.False(t, status.Bass)
}

func TestStatusNoPlayer(t *testing.T) {
	eng := newFakeEngine()
	s, _ := newTestService(eng)

	_, err := s.Status(context.Background(), testGuild)
	assert.ErrorIs(t, err, engine.ErrNoPlayer)
}

func TestSearchClampsLimit(t *testing.T) {
	eng := newFakeEngine()
	s, _ := newTestService(eng)
	ctx := context.Background()

	tracks, err := s.Search(ctx, "query", "youtube", 0)
	require.NoError(t, err)
	assert.Len(t, tracks, 10)

	tracks, err = s.Search(ctx, "query", "youtube", 100)
	require.NoError(t, err)
	assert.Len(t, tracks, 25)
}

func TestTrackEndAdvancesQueue(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 2)

	eng.finishTrack(testGuild)
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Index)

	eng.finishTrack(testGuild)
	current, err = s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestTrackEndRepeatsTrack(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 2)
	_, err := s.SetRepeatMode(ctx, testGuild, "track")
	require.NoError(t, err)

	eng.finishTrack(testGuild)
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)
	require.NotNil(t, eng.playing[testGuild])
	assert.Equal(t, "track 0", eng.playing[testGuild].Title)
}

func TestTrackEndAbortedNoProgression(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 2)

	eng.onEnd(testGuild, false)
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 0, current.Index)
}

func TestResetDropsState(t *testing.T) {
	eng := newFakeEngine(testGuild)
	s, _ := newTestService(eng)
	ctx := context.Background()

	queueTracks(t, s, eng, testGuild, 2)
	require.NoError(t, s.SetVolume(ctx, testGuild, 30))

	require.NoError(t, s.Reset(ctx, testGuild))

	queue, err := s.Queue(ctx, testGuild)
	require.NoError(t, err)
	assert.Empty(t, queue)
	current, err := s.store.GetCurrentTrack(ctx, testGuild)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Nil(t, eng.playing[testGuild])

	settings, err := s.Settings(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultVolume, settings.Volume)
}

func indices(entries []model.QueueEntry) []int {
	out := make([]int, len(entries))
	for i, entry := range entries {
		out[i] = entry.Index
	}
	return out
}

func titles(entries []model.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.Track.Title
	}
	return out
}
