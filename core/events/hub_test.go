package events

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = snowflake.ID(81384788765712384)

func newTestSubscriber(h *Hub, connID string, buffer int) *Subscriber {
	return NewSubscriber(h, connID, testGuild, 0, TransportWebSocket, buffer)
}

func waitForCount(t *testing.T, h *Hub, guildID snowflake.ID, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.SubscriberCount(guildID) == want
	}, time.Second, 5*time.Millisecond)
}

func TestHubBroadcastStatus(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	subs := make([]*Subscriber, 0, 3)
	for i := 0; i < 3; i++ {
		sub := newTestSubscriber(h, fmt.Sprintf("conn-%d", i), 8)
		subs = append(subs, sub)
		h.Register(sub)
	}
	waitForCount(t, h, testGuild, 3)

	h.BroadcastStatus(testGuild, model.PlayerStatus{
		State:  model.StatePlaying,
		Volume: 80,
	})

	for _, sub := range subs {
		select {
		case data := <-sub.Send:
			var envelope Envelope
			require.NoError(t, json.Unmarshal(data, &envelope))
			assert.Equal(t, MsgTypeStatus, envelope.Type)
			assert.Equal(t, testGuild, envelope.GuildID)
			require.NotNil(t, envelope.Status)
			assert.Equal(t, model.StatePlaying, envelope.Status.State)
			assert.Equal(t, 80, envelope.Status.Volume)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", sub.ConnID)
		}
	}
}

func TestHubDropsSaturatedSubscriber(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	healthy := newTestSubscriber(h, "healthy", 8)
	stuck := newTestSubscriber(h, "stuck", 0) // no buffer, never drained
	h.Register(healthy)
	h.Register(stuck)
	waitForCount(t, h, testGuild, 2)

	h.BroadcastStatus(testGuild, model.PlayerStatus{State: model.StateStopped})

	select {
	case <-healthy.Send:
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber received nothing")
	}
	waitForCount(t, h, testGuild, 1)

	// dropped subscriber is signalled for teardown
	select {
	case <-stuck.Done():
	case <-time.After(time.Second):
		t.Fatal("dropped subscriber was not torn down")
	}
}

func TestHubUnregisterIdempotent(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	sub := newTestSubscriber(h, "conn-a", 1)
	h.Register(sub)
	waitForCount(t, h, testGuild, 1)

	h.Unregister(sub)
	h.Unregister(sub)
	waitForCount(t, h, testGuild, 0)
}

func TestHubReplacesReusedConnID(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	first := newTestSubscriber(h, "conn-a", 1)
	second := newTestSubscriber(h, "conn-a", 1)
	h.Register(first)
	waitForCount(t, h, testGuild, 1)
	h.Register(second)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced subscriber was not torn down")
	}
	assert.Equal(t, 1, h.SubscriberCount(testGuild))
}

func TestHubVoicePresenceEnrichment(t *testing.T) {
	userInVoice := snowflake.ID(100)
	h := NewHub(func(guildID, userID snowflake.ID) bool {
		return userID == userInVoice
	})
	go h.Run()
	defer h.Stop()

	inVoice := newTestSubscriber(h, "conn-in", 8)
	inVoice.UserID = userInVoice
	outOfVoice := newTestSubscriber(h, "conn-out", 8)
	outOfVoice.UserID = snowflake.ID(200)
	anonymous := newTestSubscriber(h, "conn-anon", 8)

	h.Register(inVoice)
	h.Register(outOfVoice)
	h.Register(anonymous)
	waitForCount(t, h, testGuild, 3)

	h.BroadcastStatus(testGuild, model.PlayerStatus{State: model.StatePlaying})

	receive := func(sub *Subscriber) Envelope {
		t.Helper()
		select {
		case data := <-sub.Send:
			var envelope Envelope
			require.NoError(t, json.Unmarshal(data, &envelope))
			return envelope
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", sub.ConnID)
			return Envelope{}
		}
	}

	assert.True(t, receive(inVoice).Status.InVoiceChannel)
	assert.False(t, receive(outOfVoice).Status.InVoiceChannel)
	assert.False(t, receive(anonymous).Status.InVoiceChannel)
}

func TestHubGuildIsolation(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	otherGuild := snowflake.ID(999)
	sub := newTestSubscriber(h, "conn-a", 1)
	h.Register(sub)
	waitForCount(t, h, testGuild, 1)

	h.BroadcastStatus(otherGuild, model.PlayerStatus{State: model.StatePlaying})
	h.BroadcastStatus(testGuild, model.PlayerStatus{State: model.StatePaused})

	select {
	case data := <-sub.Send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, testGuild, envelope.GuildID)
		assert.Equal(t, model.StatePaused, envelope.Status.State)
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}
	assert.Empty(t, sub.Send)
}

func TestTrySendAfterDrop(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	sub := newTestSubscriber(h, "conn-a", 0) // no buffer, never drained
	h.Register(sub)
	waitForCount(t, h, testGuild, 1)

	// Saturating the buffer makes the hub drop the subscriber.
	h.BroadcastStatus(testGuild, model.PlayerStatus{State: model.StatePlaying})
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber was not dropped")
	}

	// The read pump answers client pings through TrySend; a drop racing
	// with that send must not panic.
	pong, err := json.Marshal(Envelope{Type: MsgTypePong})
	require.NoError(t, err)
	assert.False(t, sub.TrySend(pong))
	assert.Empty(t, sub.Send)
}

func TestTrySendBufferFull(t *testing.T) {
	h := NewHub(nil)
	sub := newTestSubscriber(h, "conn-a", 1)

	assert.True(t, sub.TrySend([]byte("first")))
	assert.False(t, sub.TrySend([]byte("second")))
	assert.Len(t, sub.Send, 1)
}

func TestHubRegisterAfterStop(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	h.Stop()

	sub := newTestSubscriber(h, "conn-a", 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.Register(sub)
		h.Unregister(sub)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked on a stopped hub")
	}
}

func TestHubStopTearsDownSubscribers(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	sub := newTestSubscriber(h, "conn-a", 1)
	h.Register(sub)
	waitForCount(t, h, testGuild, 1)

	h.Stop()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber survived hub shutdown")
	}
}

func TestHelloEnvelope(t *testing.T) {
	status := &model.PlayerStatus{State: model.StateStopped, Volume: 100}
	data, err := HelloEnvelope(testGuild, status)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, MsgTypeHello, envelope.Type)
	assert.Equal(t, testGuild, envelope.GuildID)
	assert.NotZero(t, envelope.Timestamp)
}
