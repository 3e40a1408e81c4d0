package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type watchedDir struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

type addWatchedRequest struct {
	Path string `json:"path"`
	// Sync ingests the files already in the directory. Defaults to true.
	Sync *bool `json:"sync,omitempty"`
}

// requireWatch answers 501 when the server runs without a watcher.
func (s *Server) requireWatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.watch == nil {
			s.respondError(w, http.StatusNotImplemented, "watching is not enabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListWatched(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{"directories": s.watch.Directories()})
}

func (s *Server) handleAddWatched(w http.ResponseWriter, r *http.Request) {
	var req addWatchedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "body must be {\"path\": \"<directory>\"}")
		return
	}
	dir, status, err := existingDir(req.Path)
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(dir, syncExisting); err != nil {
		s.logger.Error("add watched directory failed", zap.String("path", dir), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, watchedDir{Path: dir, Status: "added"})
}

// handleRemoveWatched takes the directory from ?path= or, failing that, a JSON body.
func (s *Server) handleRemoveWatched(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" {
		var req addWatchedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		target = req.Path
	}
	if target == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	dir, err := filepath.Abs(target)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.watch.RemoveDirectory(dir); err != nil {
		s.logger.Error("remove watched directory failed", zap.String("path", dir), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, watchedDir{Path: dir, Status: "removed"})
}

var errNotDir = errors.New("path is not a directory")

// existingDir resolves path and checks that it names a directory, returning the
// HTTP status to use when it does not.
func existingDir(path string) (string, int, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", http.StatusBadRequest, err
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", http.StatusNotFound, errors.New("directory not found")
	case err != nil:
		return "", http.StatusInternalServerError, err
	case !info.IsDir():
		return "", http.StatusBadRequest, errNotDir
	}
	return dir, 0, nil
}
