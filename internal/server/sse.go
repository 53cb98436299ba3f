package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

const heartbeatInterval = 30 * time.Second

// SSEEvent is the wire shape of one server-sent event payload.
type SSEEvent struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// sseWriter wraps a response writer for server-sent event output.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
	}, nil
}

func (s *sseWriter) writeEvent(eventType string, properties any) error {
	data, err := json.Marshal(SSEEvent{Type: eventType, Properties: properties})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

// events handles GET /event, streaming bus events to the client until it
// disconnects.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeInternal, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := sw.flush(); err != nil {
		return
	}

	if err := sw.writeEvent("server.connected", map[string]any{}); err != nil {
		return
	}

	events := make(chan bus.Event, 10)
	unsubscribe := s.bus.SubscribeAll(func(event bus.Event) {
		select {
		case events <- event:
		default:
			s.log.Warn().Str("event", string(event.Type)).Msg("dropping event for slow SSE client")
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			if err := sw.writeEvent(string(event.Type), event.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sw.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}
