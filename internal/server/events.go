package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// eventView is sent once when a stream opens, carrying every current card.
const eventView = "view"

// handleEvents streams directory changes as server-sent events.
//
// A client first receives a "view" event with the full card list, then a
// "rebuild" event for each new generation and a "card" event for each card
// change. Clients must discard cards whose generation is not the latest
// announced one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribed before the view is taken so no change can fall between them
	events, cancel := s.directory.Subscribe()
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, eventView, s.directory.View()); err != nil {
		return
	}
	flusher.Flush()

	ip := GetRealIP(r, s.trustProxy)
	log.Debug().Str("ip", ip).Msg("Event stream opened")
	defer log.Debug().Str("ip", ip).Msg("Event stream closed")

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(e.Type), e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one event frame with v encoded as a single JSON line.
func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
