package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/edmunds/internal/engine"
	"github.com/seantiz/edmunds/internal/model"
	"github.com/seantiz/edmunds/internal/store"
)

// handleStreamEvents streams a call's lifecycle as server-sent events. The
// stream always ends with a "done" event carrying the finished call.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.store.GetCall(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		s.logger.Error("get call for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get call")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)

	if model.IsTerminal(c.Status) {
		_ = writeSSEEvent(w, engine.EventDone, c)
		_ = rc.Flush()
		return
	}

	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()
	_ = rc.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Closed without a done event: the call finished before we
				// subscribed or this subscriber fell behind.
				final, err := s.store.GetCall(r.Context(), id)
				if err != nil {
					return
				}
				_ = writeSSEEvent(w, engine.EventDone, final)
				_ = rc.Flush()
				return
			}
			if err := writeSSEEvent(w, ev.Type, ev.Call); err != nil {
				return
			}
			_ = rc.Flush()
			if ev.Type == engine.EventDone {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event whose data is v encoded as JSON.
func writeSSEEvent(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}
