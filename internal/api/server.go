// Package api exposes the read-only dashboard endpoints over the stored
// triage records.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/store"
)

// RecordReader is the store surface the dashboard reads.
type RecordReader interface {
	ListRecent(ctx context.Context, limit int) ([]store.Record, error)
	CategoryCounts(ctx context.Context) (map[string]int64, error)
}

type Server struct {
	reader RecordReader
	logger logger.Logger
}

func NewServer(reader RecordReader, log logger.Logger) *Server {
	return &Server{
		reader: reader,
		logger: log.WithFields(map[string]interface{}{
			"component": "api",
		}),
	}
}

// Register mounts the dashboard routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/tickets", s.handleTickets)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := s.reader.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing records failed", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}

	s.writeJSON(w, map[string]interface{}{
		"tickets": records,
		"count":   len(records),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := s.reader.CategoryCounts(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	s.writeJSON(w, map[string]interface{}{
		"total":      total,
		"categories": counts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
