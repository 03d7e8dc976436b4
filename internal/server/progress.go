package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/volcast/internal/results"
)

// progressEvent is one websocket message.
type progressEvent struct {
	Type  string              `json:"type"` // "step" or "done"
	RunID string              `json:"run_id"`
	Step  *results.StepResult `json:"step,omitempty"`
}

// ProgressHub fans step results out to websocket subscribers. Publishing
// never blocks the walk-forward loop: slow subscribers drop messages.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan progressEvent]struct{}
	log  zerolog.Logger
}

// NewProgressHub creates an empty hub.
func NewProgressHub(log zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		subs: make(map[chan progressEvent]struct{}),
		log:  log.With().Str("component", "progress_hub").Logger(),
	}
}

// PublishStep broadcasts one completed step.
func (h *ProgressHub) PublishStep(runID string, step results.StepResult) {
	h.broadcast(progressEvent{Type: "step", RunID: runID, Step: &step})
}

// PublishDone broadcasts run completion.
func (h *ProgressHub) PublishDone(runID string) {
	h.broadcast(progressEvent{Type: "done", RunID: runID})
}

func (h *ProgressHub) broadcast(ev progressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *ProgressHub) subscribe() chan progressEvent {
	ch := make(chan progressEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *ProgressHub) unsubscribe(ch chan progressEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// handleProgressSocket streams progress events to a websocket client until
// the client disconnects.
func (s *Server) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		s.respondError(w, http.StatusNotImplemented, "progress stream not configured")
		return
	}

	opts := &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	}
	if s.devMode {
		// Mirrors the CORS policy: any origin in dev, localhost otherwise
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := s.progress.subscribe()
	defer s.progress.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
