// internal/api/server.go
// Package api serves the ranked snapshot over HTTP. Every read hits the
// in-memory snapshot; no request ever waits on a refresh cycle.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"menuranker/internal/common/config"
	"menuranker/internal/common/database"
	"menuranker/internal/common/logger"
	"menuranker/internal/models"
	"menuranker/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresher triggers an immediate cycle; satisfied by the scheduler.
type Refresher interface {
	TriggerNow(ctx context.Context) bool
}

type Server struct {
	store     *store.Store
	refresher Refresher
	sources   []config.SourceConfig
	db        *database.RedisClient
	logger    logger.Logger
}

func NewServer(st *store.Store, refresher Refresher, sources []config.SourceConfig, db *database.RedisClient, log logger.Logger) *Server {
	return &Server{
		store:     st,
		refresher: refresher,
		sources:   sources,
		db:        db,
		logger:    log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /deals/top", s.handleTopDeals)
	mux.HandleFunc("GET /sources", s.handleSources)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type topDealsResponse struct {
	Deals       []models.RankedItem `json:"deals"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

func (s *Server) handleTopDeals(w http.ResponseWriter, r *http.Request) {
	q := store.Query{Limit: 10}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		q.Limit = limit
	}
	q.SourceID = r.URL.Query().Get("source")
	if raw := r.URL.Query().Get("app_exclusive"); raw != "" {
		exclusive, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "app_exclusive must be a boolean")
			return
		}
		q.AppExclusive = exclusive
	}

	deals, err := s.store.TopN(q)
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			s.writeError(w, http.StatusServiceUnavailable, "no ranked data available yet")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, topDealsResponse{
		Deals:       deals,
		GeneratedAt: s.store.Current().GeneratedAt,
	})
}

type sourceStatus struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Adapter     string `json:"adapter"`
	LastCycle   string `json:"lastCycle"` // ok, failed, or unknown
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	statuses := make([]sourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		status := sourceStatus{
			ID:          src.ID,
			DisplayName: src.DisplayName,
			Adapter:     src.Adapter,
			LastCycle:   "unknown",
		}
		if snap != nil {
			if contains(snap.SourcesSucceeded, src.ID) {
				status.LastCycle = "ok"
			} else if contains(snap.SourcesFailed, src.ID) {
				status.LastCycle = "failed"
			}
		}
		statuses = append(statuses, status)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sources": statuses})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no ranked data available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher.TriggerNow(r.Context()) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
		return
	}
	// A cycle is already running; its result will be at least as fresh.
	s.writeJSON(w, http.StatusConflict, map[string]string{"status": "refresh already in progress"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "redis unreachable",
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response", nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
