package events

import (
	"fmt"
	"net/http"
	"time"

	"Resona/logger"
)

const sseHeartbeat = 30 * time.Second

// ServeSSE streams the subscriber's frames as server-sent events until the
// client disconnects or the hub drops the subscriber. Blocks the caller.
func (s *Subscriber) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer func() {
		ticker.Stop()
		s.Hub.Unregister(s)
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-s.done:
			// hub dropped the subscriber
			return

		case message := <-s.Send:
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", message); err != nil {
				logger.Debug("sse write failed",
					logger.ErrorField(err),
					logger.Guild(s.GuildID),
					logger.String("conn", s.ConnID))
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
