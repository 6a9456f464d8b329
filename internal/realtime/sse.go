package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

// SSEHandler streams hub events to EventSource consumers as text/event-stream.
type SSEHandler struct {
	hub       *Hub
	heartbeat time.Duration
	reconnect ReconnectPolicy
	logger    *zap.Logger
}

// NewSSEHandler constructs the stream handler. A non-positive heartbeat
// falls back to the default interval.
func NewSSEHandler(hub *Hub, heartbeat time.Duration, logger *zap.Logger) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHandler{hub: hub, heartbeat: heartbeat, reconnect: DefaultReconnectPolicy(), logger: logger}
}

// ServeHTTP implements the stream endpoint. The conversation is selected via
// the "conversation" query parameter; the handler replays history first and
// then relays live events until the client disconnects.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel, err := h.hub.Subscribe(r.URL.Query().Get("conversation"))
	if err != nil {
		http.Error(w, "conversation is required", http.StatusBadRequest)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Advertise the base reconnect delay so EventSource clients back off
	// the same way the widget's reconnect loop does.
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.reconnect.normalized().BaseDelay.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Comment line keeps intermediaries from closing an idle stream.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, event); err != nil {
				h.logger.Debug("sse write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
	return err
}
