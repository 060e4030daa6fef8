// Package server exposes the read-only HTTP status API. It serves
// operator snapshots of the running scan loop; it never exposes raw
// addresses or full tokens and has no mutating routes.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/groblegark/footfall/internal/ledger"
	"github.com/groblegark/footfall/internal/pipeline"
)

// StatusSource is the scheduler view the API serves.
type StatusSource interface {
	Status() pipeline.Status
	Roster() []ledger.Entry
}

// Server serves the status API.
type Server struct {
	source StatusSource
}

// New returns a Server reading from source.
func New(source StatusSource) *Server {
	return &Server{source: source}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/roster", s.handleRoster)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Status())
}

// handleRoster handles GET /v1/roster.
// Tokens in roster entries are truncated; the full token only ever
// appears in persisted records.
func (s *Server) handleRoster(w http.ResponseWriter, _ *http.Request) {
	entries := s.source.Roster()
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": entries})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
