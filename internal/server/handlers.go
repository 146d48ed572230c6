package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/vars"
	"github.com/rs/zerolog/log"
)

// handleIndex renders the landing page with the cards of the current generation.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	view := s.directory.View()

	// Render into a buffer so a template failure still yields a clean 500
	var buf bytes.Buffer
	err := s.index.Execute(&buf, pageData{
		Cards:      view.Cards,
		Generation: view.Generation,
		Build:      vars.Info(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render index page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleServerList returns the loaded server list in registry format.
func (s *Server) handleServerList(w http.ResponseWriter, _ *http.Request) {
	snap := s.registry.Snapshot()

	servers := snap.Servers
	if servers == nil {
		servers = []models.ServerDescriptor{}
	}

	w.Header().Set("X-Registry-Revision", strconv.FormatUint(snap.Revision, 10))
	writeJSON(w, http.StatusOK, servers)
}

// handleCards returns every card of the current generation.
func (s *Server) handleCards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.directory.View())
}

// handleCard returns a single card by its ID.
func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.directory.Card(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// handleStatus returns the stored status history of all cards.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.statuses == nil {
		http.NotFound(w, r)
		return
	}

	records, err := s.statuses.GetStatuses()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch statuses")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []models.StatusRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// handleCardStatus returns the stored status of one card.
func (s *Server) handleCardStatus(w http.ResponseWriter, r *http.Request) {
	if s.statuses == nil {
		http.NotFound(w, r)
		return
	}

	id := r.PathValue("id")
	rec, err := s.statuses.GetStatus(id)
	if err != nil {
		log.Error().Err(err).Str("card", id).Msg("Failed to fetch status")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if rec == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleHealth reports build info and the current directory position.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Build      vars.BuildInfo `json:"build"`
		Status     string         `json:"status"`
		Generation uint64         `json:"generation"`
		Revision   uint64         `json:"revision"`
	}{
		Build:      vars.Info(),
		Status:     "ok",
		Generation: s.directory.Generation(),
		Revision:   s.directory.Revision(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
