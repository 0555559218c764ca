package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sink wraps a streaming response. Every event is flushed immediately so the
// client sees it without buffering delays.
type sink struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSink(w http.ResponseWriter) (*sink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sink{w: w, f: f}, nil
}

func (s *sink) send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
