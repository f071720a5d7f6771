package server

import (
	"context"
	"net/http"
	"strings"

	"Resona/core/events"
	"Resona/logger"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const subscriberBuffer = 16

// handleEvents negotiates the push transport: a WebSocket upgrade when the
// client offers one, an SSE stream when it accepts text/event-stream, 400
// otherwise.
func (h *MusicHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	var userID snowflake.ID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := snowflake.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		userID = id
	}

	switch {
	case websocket.IsWebSocketUpgrade(r):
		h.serveWebSocket(w, r, guildID, userID)
	case strings.Contains(r.Header.Get("Accept"), "text/event-stream"):
		h.serveSSE(w, r, guildID, userID)
	default:
		writeError(w, http.StatusBadRequest, "Push transport unavailable, use WebSocket or text/event-stream")
	}
}

func (h *MusicHandler) serveWebSocket(w http.ResponseWriter, r *http.Request, guildID, userID snowflake.ID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err), logger.Guild(guildID))
		return
	}

	sub := events.NewSubscriber(h.hub, uuid.NewString(), guildID, userID, events.TransportWebSocket, subscriberBuffer)
	h.hub.Register(sub)
	h.sendHello(sub)

	go sub.WritePump(conn)
	sub.ReadPump(r.Context(), conn)
}

func (h *MusicHandler) serveSSE(w http.ResponseWriter, r *http.Request, guildID, userID snowflake.ID) {
	sub := events.NewSubscriber(h.hub, uuid.NewString(), guildID, userID, events.TransportSSE, subscriberBuffer)
	h.hub.Register(sub)
	h.sendHello(sub)

	sub.ServeSSE(w, r)
}

// sendHello queues the initial snapshot so a fresh subscriber sees current
// state without waiting for the next mutation.
func (h *MusicHandler) sendHello(sub *events.Subscriber) {
	status, err := h.service.Snapshot(context.Background(), sub.GuildID)
	if err != nil {
		logger.Warn("failed to build hello snapshot", logger.ErrorField(err), logger.Guild(sub.GuildID))
		return
	}
	if sub.UserID != 0 && h.presence != nil {
		status.InVoiceChannel = h.presence(sub.GuildID, sub.UserID)
	}

	data, err := events.HelloEnvelope(sub.GuildID, status)
	if err != nil {
		logger.Error("failed to marshal hello frame", logger.ErrorField(err))
		return
	}

	sub.TrySend(data)
}
