package events

import (
	"context"
	"encoding/json"
	"time"

	"Resona/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// ReadPump consumes client frames until the connection dies. Application
// pings are answered with a pong; everything else is ignored.
func (s *Subscriber) ReadPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.Hub.Unregister(s)
		conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.Guild(s.GuildID),
						logger.String("conn", s.ConnID))
				}
				return
			}

			var envelope Envelope
			if err := json.Unmarshal(message, &envelope); err != nil {
				logger.Warn("invalid client frame",
					logger.ErrorField(err),
					logger.Guild(s.GuildID))
				continue
			}

			if envelope.Type == MsgTypePing {
				pong := Envelope{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					s.TrySend(data)
				}
			}
		}
	}
}

// WritePump drains the send channel onto the socket and keeps the connection
// alive with protocol pings.
func (s *Subscriber) WritePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-s.done:
			// hub dropped the subscriber
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// flush whatever queued up behind this frame
			n := len(s.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
