package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventWriter emits one named SSE event. A non-nil error means the
// transport is gone (client disconnected) and the caller must stop.
type EventWriter interface {
	WriteEvent(name string, payload any) error
}

// SSEWriter streams events over an http.ResponseWriter, flushing after
// every write so the client observes each phase as it happens.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the streaming response headers and returns a writer, or
// ok=false if the underlying ResponseWriter cannot be flushed incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher}, true
}

func (s *SSEWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("orchestrator: encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
