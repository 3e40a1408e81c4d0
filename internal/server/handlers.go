package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hyperjump/shiori/internal/gateway"
	"github.com/hyperjump/shiori/internal/loader"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/pipeline"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

type ingestRequest struct {
	Folder string `json:"folder"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Folder == "" {
		s.respondError(w, http.StatusBadRequest, "folder is required")
		return
	}
	s.logger.Debug("ingest request", zap.String("folder", req.Folder))
	n, err := s.service.Ingest(r.Context(), req.Folder)
	var partial *gateway.PartialIngestionError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusCreated, map[string]int{"chunks": n})
	case errors.Is(err, loader.ErrFolderNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNoDocuments):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &partial):
		s.logger.Error("ingest partially failed", zap.Int("added", partial.Added), zap.Int("total", partial.Total), zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
			"added": partial.Added,
			"total": partial.Total,
		})
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.NResults == 0 {
		query.NResults = s.nResults
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", query.Query), zap.Int("n_results", query.NResults))
	result, err := s.service.Search(r.Context(), query.Query, query.NResults)
	if errors.Is(err, pipeline.ErrEmptyCollection) {
		s.respondError(w, http.StatusConflict, "collection is empty, ingest documents first")
		return
	}
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"collection_name":   stats.CollectionName,
		"total_chunks":      stats.TotalChunks,
		"persist_directory": stats.PersistDirectory,
	}
	if stats.PersistDirectory != "" {
		if diskBytes, err := utils.DiskUsageBytes(stats.PersistDirectory); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
