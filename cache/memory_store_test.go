package cache

import (
	"context"
	"sync"
	"testing"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(index int, title string) model.QueueEntry {
	return model.QueueEntry{
		Index: index,
		Track: model.Track{
			Encoded:  "enc-" + title,
			Title:    title,
			Author:   "author",
			Duration: 180000,
			Provider: model.ProviderYouTube,
		},
		Requester: model.Requester{ID: 42, Name: "tester"},
	}
}

func TestMemoryPlayerStore_QueueRoundTrip(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()
	guildID := snowflake.ID(100)

	queue, err := store.GetQueue(ctx, guildID)
	require.NoError(t, err)
	assert.Empty(t, queue)

	entries := []model.QueueEntry{testEntry(0, "first"), testEntry(1, "second")}
	require.NoError(t, store.SetQueue(ctx, guildID, entries))

	queue, err = store.GetQueue(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "first", queue[0].Track.Title)
	assert.Equal(t, 1, queue[1].Index)
}

func TestMemoryPlayerStore_QueueCopyIsolated(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()
	guildID := snowflake.ID(100)

	require.NoError(t, store.SetQueue(ctx, guildID, []model.QueueEntry{testEntry(0, "first")}))

	queue, err := store.GetQueue(ctx, guildID)
	require.NoError(t, err)
	queue[0].Track.Title = "mutated"

	again, err := store.GetQueue(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, "first", again[0].Track.Title)
}

func TestMemoryPlayerStore_CurrentTrack(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()
	guildID := snowflake.ID(100)

	current, err := store.GetCurrentTrack(ctx, guildID)
	require.NoError(t, err)
	assert.Nil(t, current)

	entry := testEntry(0, "playing")
	require.NoError(t, store.SetCurrentTrack(ctx, guildID, entry))

	current, err = store.GetCurrentTrack(ctx, guildID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "playing", current.Track.Title)

	require.NoError(t, store.ClearCurrentTrack(ctx, guildID))

	current, err = store.GetCurrentTrack(ctx, guildID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestMemoryPlayerStore_Settings(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()
	guildID := snowflake.ID(100)

	settings, err := store.GetSettings(ctx, guildID)
	require.NoError(t, err)
	assert.Nil(t, settings)

	stored := model.PlayerSettings{GuildID: guildID, Volume: 55, RepeatMode: model.RepeatQueue}
	require.NoError(t, store.SetSettings(ctx, guildID, stored))

	settings, err = store.GetSettings(ctx, guildID)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, 55, settings.Volume)
	assert.Equal(t, model.RepeatQueue, settings.RepeatMode)
}

func TestMemoryPlayerStore_GuildsAreIsolated(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()

	require.NoError(t, store.SetQueue(ctx, 1, []model.QueueEntry{testEntry(0, "one")}))
	require.NoError(t, store.SetQueue(ctx, 2, []model.QueueEntry{testEntry(0, "two"), testEntry(1, "three")}))

	q1, err := store.GetQueue(ctx, 1)
	require.NoError(t, err)
	q2, err := store.GetQueue(ctx, 2)
	require.NoError(t, err)

	assert.Len(t, q1, 1)
	assert.Len(t, q2, 2)
}

func TestMemoryPlayerStore_Reset(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()
	guildID := snowflake.ID(100)

	require.NoError(t, store.SetQueue(ctx, guildID, []model.QueueEntry{testEntry(0, "one")}))
	require.NoError(t, store.SetCurrentTrack(ctx, guildID, testEntry(0, "one")))
	require.NoError(t, store.Reset(ctx, guildID))

	queue, err := store.GetQueue(ctx, guildID)
	require.NoError(t, err)
	assert.Empty(t, queue)

	current, err := store.GetCurrentTrack(ctx, guildID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestMemoryPlayerStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryPlayerStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			guildID := snowflake.ID(n % 4)
			for j := 0; j < 50; j++ {
				_ = store.SetQueue(ctx, guildID, []model.QueueEntry{testEntry(0, "t")})
				_, _ = store.GetQueue(ctx, guildID)
				_ = store.SetCurrentTrack(ctx, guildID, testEntry(0, "t"))
				_, _ = store.GetCurrentTrack(ctx, guildID)
			}
		}(i)
	}
	wg.Wait()
}
