package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/and161185/typegpt/internal/model"
)

// sseSink writes relay events as server-sent events.
// Headers are committed lazily by the first event, so errors found
// before it can still be answered with a plain JSON status.
type sseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// Send implements service.EventSink.
func (s *sseSink) Send(ev model.StreamEvent) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return s.rc.Flush()
}
