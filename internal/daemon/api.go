package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

const maxUploadBytes = 32 << 20

type apiServer struct {
	cfg       *config.Config
	logger    *slog.Logger
	daemon    *Daemon
	store     *store.Store
	bus       *progress.Bus
	collector *metrics.Metrics

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "api"),
		daemon:    d,
		store:     d.store,
		bus:       d.bus,
		collector: d.collector,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", srv.handleSubmitJob).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs", srv.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}", srv.handleGetJob).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id:[0-9]+}/events", srv.handleJobEvents).Methods(http.MethodGet)
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	if srv.collector != nil {
		router.Handle("/metrics", srv.collector.Handler()).Methods(http.MethodGet)
	}

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound API address, usable once start has returned.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// JobView is the wire representation of a job.
type JobView struct {
	ID              int64      `json:"id"`
	Owner           string     `json:"owner,omitempty"`
	Status          string     `json:"status"`
	Driver          string     `json:"driver,omitempty"`
	ProgressStep    string     `json:"progress_step,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	CharacterName   string     `json:"character_name,omitempty"`
	AspectRatio     string     `json:"aspect_ratio,omitempty"`
	FinalFile       string     `json:"final_file,omitempty"`
	AssetID         string     `json:"asset_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Clips           []ClipView `json:"clips,omitempty"`
}

// ClipView is the wire representation of one clip task.
type ClipView struct {
	Index       int     `json:"index"`
	Prompt      string  `json:"prompt"`
	Fragment    string  `json:"fragment"`
	DurationSec float64 `json:"duration_seconds"`
	Status      string  `json:"status"`
	RetryCount  int     `json:"retry_count"`
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	VerifyNotes string  `json:"verify_notes,omitempty"`
}

func jobView(job *store.Job, clips []*store.ClipTask) JobView {
	view := JobView{
		ID:              job.ID,
		Owner:           job.Owner,
		Status:          string(job.Status),
		Driver:          job.Driver,
		ProgressStep:    job.ProgressStep,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		CharacterName:   job.CharacterName,
		AspectRatio:     job.AspectRatio,
		FinalFile:       job.FinalFile,
		AssetID:         job.AssetID,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	for _, clip := range clips {
		view.Clips = append(view.Clips, ClipView{
			Index:       clip.Idx,
			Prompt:      clip.Prompt,
			Fragment:    clip.Fragment,
			DurationSec: clip.DurationSec,
			Status:      string(clip.Status),
			RetryCount:  clip.RetryCount,
			Verified:    clip.Verified,
			Confidence:  clip.Confidence,
			VerifyNotes: clip.VerifyNotes,
		})
	}
	return view
}

func (s *apiServer) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	script := strings.TrimSpace(r.FormValue("script"))
	if script == "" {
		s.writeError(w, http.StatusBadRequest, "script is required")
		return
	}
	image, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reference image is required")
		return
	}
	defer image.Close()

	driver := strings.TrimSpace(r.FormValue("driver"))
	switch driver {
	case "":
		driver = "pipeline"
		if s.cfg.AgentEnabled() {
			driver = "agent"
		}
	case "pipeline":
	case "agent":
		if !s.cfg.AgentEnabled() {
			s.writeError(w, http.StatusBadRequest, "agent driver requires a tool-model credential")
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown driver %q", driver))
		return
	}

	job, err := s.store.NewJob(r.Context(), store.NewJobParams{
		Owner:         strings.TrimSpace(r.FormValue("owner")),
		Script:        script,
		CharacterName: strings.TrimSpace(r.FormValue("character_name")),
		Voice:         strings.TrimSpace(r.FormValue("voice")),
		AspectRatio:   strings.TrimSpace(r.FormValue("aspect_ratio")),
		Driver:        driver,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ws, err := workspace.ForJob(s.cfg.Paths.WorkspaceDir, job.ID)
	if err == nil {
		err = saveUpload(image, ws.ReferenceImage())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("store reference image: %v", err))
		return
	}
	job.ReferenceImage = ws.ReferenceImage()
	if err := s.store.Update(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("job submitted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("driver", driver),
		logging.String("image", header.Filename),
	)
	s.writeJSON(w, http.StatusCreated, jobView(job, nil))
}

func saveUpload(src io.Reader, dest string) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []store.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := store.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job, nil))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	clips, err := s.store.ClipsForJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, jobView(job, clips))
}

func (s *apiServer) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	keepalive := time.Duration(s.cfg.Workflow.KeepaliveSeconds) * time.Second
	if err := progress.ServeSSE(r.Context(), w, s.bus.HubFor(id), keepalive); err != nil {
		s.logger.Debug("event stream ended",
			logging.Int64(logging.FieldJobID, id),
			logging.Error(err),
		)
	}
}

// StatusResponse is the wire representation of daemon health.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	AgentEnabled bool           `json:"agent_enabled"`
	JobsDBPath   string         `json:"jobs_db_path"`
	LockFilePath string         `json:"lock_file_path"`
	JobCounts    map[string]int `json:"job_counts"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Running:      s.daemon.Running(),
		PID:          os.Getpid(),
		AgentEnabled: s.cfg.AgentEnabled(),
		JobsDBPath:   s.daemon.DBPath(),
		LockFilePath: s.daemon.LockPath(),
		JobCounts:    counts,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write api response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
