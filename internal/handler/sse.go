package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/model"
	"github.com/draftforge-ai/authoring-platform/pkg/metrics"
)

const heartbeatInterval = 15 * time.Second

// sseWriter serializes engine updates onto one SSE response. Writes are
// mutexed because heartbeats and stream updates arrive from different
// goroutines.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for server-sent events. Returns false
// when the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	return &sseWriter{w: w, flusher: flusher}, true
}

// close releases the connection metric.
func (s *sseWriter) close() {
	metrics.DecrementSSEConnections()
}

// send writes one named SSE event with a JSON payload.
func (s *sseWriter) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// heartbeat keeps the connection alive through long thinking pauses. The
// returned stop function must be called before the response ends.
func (s *sseWriter) heartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.send("heartbeat", &model.HeartbeatEvent{Timestamp: t})
			}
		}
	}()
	return func() { close(done) }
}

// sink adapts the writer to the engine's update callback.
func (s *sseWriter) sink() engine.UpdateSink {
	return func(u engine.Update) error {
		switch u.Kind {
		case "thinking":
			return s.send("thinking", u.Thinking)
		case "token":
			return s.send("token", u.Token)
		case "edit":
			return s.send("edit", u.Edit)
		case "message_complete":
			return s.send("message_complete", &model.MessageCompleteEvent{Message: *u.Message})
		case "error":
			return s.send("error", u.Err)
		default:
			return nil
		}
	}
}
