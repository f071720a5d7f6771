package events

import (
	"encoding/json"
	"sync"
	"time"

	"Resona/logger"
	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
)

// MessageType identifies a push frame.
type MessageType string

const (
	MsgTypeHello  MessageType = "hello"  // sent once after subscribing
	MsgTypeStatus MessageType = "status" // player status snapshot
	MsgTypePing   MessageType = "ping"   // client heartbeat
	MsgTypePong   MessageType = "pong"   // heartbeat response
)

// Envelope is the frame pushed to every subscriber.
type Envelope struct {
	Type      MessageType         `json:"type"`
	GuildID   snowflake.ID        `json:"guildId,omitempty"`
	Status    *model.PlayerStatus `json:"status,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Transport names how a subscriber is connected.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// Subscriber is one connected client following a guild's player.
type Subscriber struct {
	Hub       *Hub
	ConnID    string
	GuildID   snowflake.ID
	UserID    snowflake.ID // 0 when the client did not identify itself
	Transport Transport
	Send      chan []byte

	// Closed by the hub when the subscriber is dropped. Send itself is never
	// closed, so concurrent senders cannot panic on a torn-down subscriber.
	done chan struct{}
}

// NewSubscriber builds a subscriber with a send buffer of the given size.
func NewSubscriber(h *Hub, connID string, guildID, userID snowflake.ID, transport Transport, buffer int) *Subscriber {
	return &Subscriber{
		Hub:       h,
		ConnID:    connID,
		GuildID:   guildID,
		UserID:    userID,
		Transport: transport,
		Send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
}

// Done is closed when the hub has dropped this subscriber.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// TrySend queues a frame without blocking. Reports false when the buffer is
// full or the subscriber was already dropped.
func (s *Subscriber) TrySend(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.Send <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// VoicePresenceFunc reports whether a user shares a voice channel with the
// bot in a guild.
type VoicePresenceFunc func(guildID, userID snowflake.ID) bool

type statusBroadcast struct {
	guildID snowflake.ID
	status  model.PlayerStatus
}

// Hub fans player status updates out to all subscribers of a guild.
type Hub struct {
	// guild -> subscriber set
	guilds map[snowflake.ID]map[*Subscriber]bool

	// connection id -> subscriber
	conns map[string]*Subscriber

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *statusBroadcast

	voicePresence VoicePresenceFunc

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub creates the fan-out hub. presence may be nil; enrichment is then
// skipped and inVoiceChannel is pushed as-is.
func NewHub(presence VoicePresenceFunc) *Hub {
	return &Hub{
		guilds:        make(map[snowflake.ID]map[*Subscriber]bool),
		conns:         make(map[string]*Subscriber),
		register:      make(chan *Subscriber),
		unregister:    make(chan *Subscriber),
		broadcast:     make(chan *statusBroadcast, 256),
		voicePresence: presence,
		done:          make(chan struct{}),
	}
}

// Run drives the hub main loop until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.registerSubscriber(sub)

		case sub := <-h.unregister:
			h.unregisterSubscriber(sub)

		case msg := <-h.broadcast:
			h.broadcastStatus(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and tears down all subscribers.
func (h *Hub) Stop() {
	close(h.done)
}

// Register attaches a subscriber to its guild. Returns immediately after a
// stopped hub.
func (h *Hub) Register(sub *Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unregister detaches a subscriber. Safe to call more than once and after
// the hub has stopped.
func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// BroadcastStatus queues a status snapshot for fan-out to all subscribers of
// the guild. Never blocks; the update is dropped if the hub is saturated.
func (h *Hub) BroadcastStatus(guildID snowflake.ID, status model.PlayerStatus) {
	select {
	case h.broadcast <- &statusBroadcast{guildID: guildID, status: status}:
	default:
		logger.Warn("status broadcast dropped, hub saturated", logger.Guild(guildID))
	}
}

// SubscriberCount returns how many clients follow a guild.
func (h *Hub) SubscriberCount(guildID snowflake.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.guilds[guildID])
}

func (h *Hub) registerSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A reused connection id replaces the old subscriber.
	if old, exists := h.conns[sub.ConnID]; exists {
		h.removeSubscriber(old)
	}

	if h.guilds[sub.GuildID] == nil {
		h.guilds[sub.GuildID] = make(map[*Subscriber]bool)
	}
	h.guilds[sub.GuildID][sub] = true
	h.conns[sub.ConnID] = sub

	logger.Info("subscriber registered",
		logger.Guild(sub.GuildID),
		logger.String("conn", sub.ConnID),
		logger.String("transport", string(sub.Transport)))
}

func (h *Hub) unregisterSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeSubscriber(sub)
}

// removeSubscriber drops a subscriber and signals its teardown. Caller holds
// the lock. Idempotent: a subscriber already removed is left alone.
func (h *Hub) removeSubscriber(sub *Subscriber) {
	subs, ok := h.guilds[sub.GuildID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	close(sub.done)
	if len(subs) == 0 {
		delete(h.guilds, sub.GuildID)
	}
	if h.conns[sub.ConnID] == sub {
		delete(h.conns, sub.ConnID)
	}

	logger.Info("subscriber unregistered",
		logger.Guild(sub.GuildID),
		logger.String("conn", sub.ConnID))
}

func (h *Hub) broadcastStatus(msg *statusBroadcast) {
	h.mu.RLock()
	subs, ok := h.guilds[msg.guildID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	subList := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		subList = append(subList, sub)
	}
	h.mu.RUnlock()

	envelope := Envelope{
		Type:      MsgTypeStatus,
		GuildID:   msg.guildID,
		Timestamp: time.Now().UnixMilli(),
	}

	status := msg.status
	envelope.Status = &status
	shared, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("failed to marshal status envelope", logger.ErrorField(err))
		return
	}

	// Failed sends cannot go through h.unregister here: Run is the only
	// reader of that channel and this runs on its goroutine.
	var failed []*Subscriber
	for _, sub := range subList {
		data := shared
		if sub.UserID != 0 && h.voicePresence != nil {
			if enriched := h.enrich(envelope, msg.status, sub); enriched != nil {
				data = enriched
			}
		}

		if !sub.TrySend(data) {
			failed = append(failed, sub)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sub := range failed {
			logger.Warn("subscriber send buffer full, dropping connection",
				logger.Guild(sub.GuildID),
				logger.String("conn", sub.ConnID))
			h.removeSubscriber(sub)
		}
		h.mu.Unlock()
	}
}

// enrich re-marshals the envelope with inVoiceChannel resolved for the
// identified subscriber.
func (h *Hub) enrich(envelope Envelope, status model.PlayerStatus, sub *Subscriber) []byte {
	status.InVoiceChannel = h.voicePresence(sub.GuildID, sub.UserID)
	envelope.Status = &status

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("failed to marshal enriched envelope", logger.ErrorField(err))
		return nil
	}
	return data
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.guilds {
		for sub := range subs {
			close(sub.done)
		}
	}
	h.guilds = make(map[snowflake.ID]map[*Subscriber]bool)
	h.conns = make(map[string]*Subscriber)
}

// HelloEnvelope builds the frame sent right after a client subscribes.
func HelloEnvelope(guildID snowflake.ID, status *model.PlayerStatus) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      MsgTypeHello,
		GuildID:   guildID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
}
