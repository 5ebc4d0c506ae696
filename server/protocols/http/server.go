package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/convert"
	"github.com/danyguancha/soft-eps-v2-sub000/server/dataset"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/indicators"
	"github.com/danyguancha/soft-eps-v2-sub000/server/join"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

const maxUploadBytes = 2 << 30 // 2 GiB

// Server is the HTTP protocol surface over the dataset service.
type Server struct {
	cfg      *config.HTTPConfig
	service  *dataset.Service
	profiler *indicators.Profiler
	gateway  *engine.Gateway
	paths    *paths.Manager
	logger   zerolog.Logger
	server   *http.Server
	wg       sync.WaitGroup
}

func NewServer(cfg *config.HTTPConfig, svc *dataset.Service, profiler *indicators.Profiler, gw *engine.Gateway, pm *paths.Manager, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		service:  svc,
		profiler: profiler,
		gateway:  gw,
		paths:    pm,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}
}

// Start begins serving. It returns immediately; the listener runs in a
// background goroutine until Stop.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("HTTP server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.withRequestID(s.routes()),
	}

	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /datasets", s.handleUpload)
	mux.HandleFunc("GET /datasets", s.handleList)
	mux.HandleFunc("POST /datasets/{id}/query", s.handleQuery)
	mux.HandleFunc("POST /datasets/{id}/promote", s.handlePromote)
	mux.HandleFunc("DELETE /datasets/{id}", s.handleEvict)
	mux.HandleFunc("GET /datasets/{id}/profile", s.handleProfile)
	mux.HandleFunc("POST /joins", s.handleJoin)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /cache/cleanup", s.handleCacheCleanup)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	s.logger.Info().Msg("HTTP server stopped")
	return err
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(r.Context()))
		s.logger.Debug().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request handled")
	})
}

// handleUpload receives a multipart file, stores it under the uploads
// directory and ingests it. The stored copy stays on disk so the
// canonical file can be regenerated from it later.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, errors.New(ErrBadRequest, "invalid multipart request", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, errors.New(ErrBadRequest, "missing file field", err))
		return
	}
	defer file.Close()

	logicalID := r.FormValue("logical_id")
	if logicalID == "" {
		logicalID = uuid.NewString()
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	storedPath := filepath.Join(s.paths.GetUploadsPath(), uuid.NewString()+ext)

	dst, err := os.Create(storedPath)
	if err != nil {
		s.writeError(w, errors.New(ErrUploadFailed, "failed to store uploaded file", err))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(storedPath)
		s.writeError(w, errors.New(ErrUploadFailed, "failed to store uploaded file", err))
		return
	}
	dst.Close()

	result, err := s.service.Ingest(r.Context(), storedPath, header.Filename, ext, logicalID)
	if err != nil {
		os.Remove(storedPath)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.service.List()
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"logical_id":   e.LogicalID,
			"state":        e.State,
			"recovered":    e.Recovered,
			"columns":      e.Source.Columns,
			"total_rows":   e.Source.TotalRows,
			"content_hash": e.Source.ContentHash,
			"loaded_at":    e.LoadedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": out})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.New(ErrBadRequest, "invalid query request body", err))
		return
	}
	req.LogicalID = r.PathValue("id")

	page, err := s.service.Query(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, errors.New(ErrBadRequest, "invalid promote request body", err))
		return
	}

	entry, err := s.service.Promote(r.Context(), r.PathValue("id"), registry.State(body.Target))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"logical_id": entry.LogicalID,
		"state":      entry.State,
		"load_time":  entry.LoadTime.String(),
	})
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Evict(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "evicted"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiler.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var spec join.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, errors.New(ErrBadRequest, "invalid join request body", err))
		return
	}

	result, err := s.service.Join(r.Context(), &spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.CacheStats())
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxAgeDays     int   `json:"max_age_days"`
		MinAccessCount int64 `json:"min_access_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		s.writeError(w, errors.New(ErrBadRequest, "invalid cleanup request body", err))
		return
	}
	if body.MaxAgeDays <= 0 {
		body.MaxAgeDays = 30
	}

	result := s.service.Cleanup(time.Duration(body.MaxAgeDays)*24*time.Hour, body.MinAccessCount)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed":     result.Removed,
		"bytes_freed": result.BytesFreed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.gateway.IsHealthy(r.Context()) {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// writeError maps a typed error to a status code and a response body
// containing the code and the human-readable reason. Cause chains stay
// server-side; engine detail never crosses this boundary.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)

	status := http.StatusInternalServerError
	switch {
	case code.Equals(registry.ErrMiss):
		status = http.StatusNotFound
	case code.Equals(ErrBadRequest),
		code.Equals(query.ErrInvalidRequest),
		code.Equals(dataset.ErrInvalidRequest),
		code.Equals(join.ErrInvalidSpec),
		code.Equals(registry.ErrInvalidTransition):
		status = http.StatusBadRequest
	case code.Equals(convert.ErrAllStrategiesFailed),
		code.Equals(convert.ErrUnsupportedExtension),
		code.Equals(convert.ErrEmptySource):
		status = http.StatusUnprocessableEntity
	case code.Equals(convert.ErrTimeout):
		status = http.StatusGatewayTimeout
	}

	s.logger.Error().Err(err).Str("code", code.String()).Int("status", status).Msg("Request failed")

	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code.String(),
			"message": messageOf(err),
		},
	})
}

// messageOf extracts the outermost structured message so raw engine
// errors are not echoed to clients.
func messageOf(err error) string {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if typed, ok := e.(*errors.Error); ok {
			return typed.Message
		}
	}
	return "internal error"
}
