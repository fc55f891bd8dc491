// Package api is the thin HTTP layer over the analysis service. Auth is an
// upstream collaborator: requests arrive with the authenticated user id in
// the X-User-ID header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/service"
	"github.com/imalyk/deepscan/internal/source"
	"github.com/imalyk/deepscan/internal/store"
)

const maxUploadBytes = 100 << 20

// AnalyzeService is the part of the core the HTTP layer needs.
type AnalyzeService interface {
	Analyze(ctx context.Context, userID int64, src source.Source) (service.Status, error)
	GetStatus(ctx context.Context, jobID string) (service.Status, error)
}

// Server carries the handler dependencies.
type Server struct {
	svc     AnalyzeService
	records store.RecordStore
	log     zerolog.Logger
}

// NewServer builds the HTTP surface.
func NewServer(svc AnalyzeService, records store.RecordStore, logger zerolog.Logger) *Server {
	return &Server{svc: svc, records: records, log: logger}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/analyze", s.handleAnalyzeUpload).Methods(http.MethodPost)
	v1.HandleFunc("/analyze/url", s.handleAnalyzeURL).Methods(http.MethodPost)
	v1.HandleFunc("/result/{task_id}", s.handleResult).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/download/log", s.handleDownloadLog).Methods(http.MethodPost)
	v1.HandleFunc("/download/count", s.handleDownloadCount).Methods(http.MethodGet)
	v1.HandleFunc("/download/history", s.handleDownloadHistory).Methods(http.MethodGet)
	return r
}

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "ok"})
}

func (s *Server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	status, err := s.svc.Analyze(r.Context(), userID, source.FromUpload(data, header.Filename))
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "video analysis started successfully", Data: status})
}

func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		VideoURL string `json:"video_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	status, err := s.svc.Analyze(r.Context(), userID, source.FromURL(req.VideoURL))
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "video analysis started successfully", Data: status})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["task_id"]
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}

	status, err := s.svc.GetStatus(r.Context(), jobID)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("status poll failed")
		writeError(w, http.StatusInternalServerError, "failed to retrieve result")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "result retrieved successfully", Data: status})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	history, err := s.records.HistoryByUser(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "failed to retrieve history")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "history retrieved successfully", Data: history})
}

func (s *Server) handleDownloadLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		VideoID    int64   `json:"video_id"`
		Result     string  `json:"result"`
		Confidence float64 `json:"confidence"`
		FileName   string  `json:"file_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.records.LogDownload(r.Context(), userID, req.VideoID, req.Result, req.Confidence, req.FileName); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("download log failed")
		writeError(w, http.StatusInternalServerError, "failed to log download")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "ok"})
}

func (s *Server) handleDownloadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	count, err := s.records.DownloadCount(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("download count failed")
		writeError(w, http.StatusInternalServerError, "failed to count downloads")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "ok", Data: map[string]int64{"count": count}})
}

func (s *Server) handleDownloadHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	history, err := s.records.DownloadHistory(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("download history failed")
		writeError(w, http.StatusInternalServerError, "failed to retrieve downloads")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "ok", Data: history})
}

// writeAnalyzeError separates caller mistakes from pipeline faults.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrBadExtension),
		errors.Is(err, source.ErrTooLarge),
		errors.Is(err, source.ErrBrokenDownload),
		errors.Is(err, media.ErrNoFrames):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Status: "error", Message: message})
}
