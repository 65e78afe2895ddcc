package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"

	"github.com/luserve/luserve/internal/nlp"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// RecognizeResponse is the body of GET /recognize/{query}.
type RecognizeResponse struct {
	Cats map[string]float64 `json:"cats"`
	Ents []nlp.Entity       `json:"ents"`
}

// RecognizeRequest is the body of POST /v1/recognize.
type RecognizeRequest struct {
	Query string `json:"query"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /recognize/{query...}", s.handleRecognize)
	mux.HandleFunc("POST /v1/recognize", s.handleRecognizeDetailed)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/models/reload", s.handleReload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	if s.metrics != nil && s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
}

// handleRecognize serves GET /recognize/{query}: the query is the rest of the
// path, passed to the models unmodified.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Recognize(r.Context(), r.PathValue("query"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RecognizeResponse{
		Cats: res.Cats,
		Ents: res.Entities(),
	})
}

func (s *Server) handleRecognizeDetailed(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		apperrors.WriteErrorWithStatus(w, http.StatusBadRequest, errors.New("invalid request body: "+err.Error()))
		return
	}

	res, err := s.svc.Recognize(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": s.svc.Models(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"models": s.svc.Models(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"recognizer": s.svc.Health(),
	})
}

// handleReady returns 503 while shutting down or before models are loaded.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "shutting_down"})
		return
	}
	if !s.svc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "models_not_loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.build.Version,
		"git_commit": s.build.Commit,
		"build_time": s.build.Date,
		"go_version": runtime.Version(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperrors.As(err); !ok || appErr.HTTPStatus() >= http.StatusInternalServerError {
		s.log.WithContext(r.Context()).Error("Request failed", "path", r.URL.Path, "error", err)
	}
	apperrors.WriteError(w, err)
}
