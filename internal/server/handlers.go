package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"store":                stats.Store,
		"index":                stats.Index,
		"embedding_mode":       stats.EmbeddingMode,
		"embedding_model":      stats.Model,
		"embedding_dimensions": stats.Dimensions,
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider": s.config.Embedding.Provider,
			"index_type":         s.config.Storage.IndexType,
			"database_path":      s.config.Storage.DatabasePath,
			"index_path":         s.config.Storage.IndexPath,
			"corpus_path":        s.config.Corpus.Path,
			"default_k":          s.config.Retrieval.DefaultK,
			"default_threshold":  s.config.Retrieval.DefaultThreshold,
		}
		diskBytes, err := storage.DiskUsageBytes(
			s.config.Storage.DatabasePath,
			s.config.Storage.IndexPath+".*",
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.service.SearchQA(r.Context(), &query)
	if err != nil {
		s.respondServiceError(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type groundRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleGround(w http.ResponseWriter, r *http.Request) {
	var req groundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ground request", zap.String("query", req.Query), zap.String("session_id", req.SessionID))
	g, err := s.service.Ground(r.Context(), req.Query, req.SessionID)
	if err != nil {
		s.respondServiceError(w, "ground", err)
		return
	}
	s.respondJSON(w, http.StatusOK, g)
}

func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, models.ErrInvalidInput) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
