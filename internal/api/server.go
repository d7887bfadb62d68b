package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/compose"
	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/research"
	"reelsmith/internal/script"
	"reelsmith/internal/services"
	"reelsmith/internal/services/imagegen"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/tts"
	"reelsmith/internal/speech"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
	"reelsmith/internal/visuals"
)

// Options carries the dependencies the HTTP surface needs. Config, Store,
// and Artifacts are required; nil service clients leave the corresponding
// stage unavailable, which /api/status reports.
type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Notifier  notifications.Service
	LLM       llm.Client
	TTS       tts.Client
	Images    imagegen.Client
	Artifacts storage.Store
	Renderer  compose.Renderer
	Prober    compose.Prober
	Audio     speech.AudioProcessor
}

// Server routes project and pipeline requests. Stage handlers are built per
// request since the pipeline binds a logger and event sink to the handler
// for the duration of a run.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	notifier  notifications.Service
	llm       llm.Client
	tts       tts.Client
	images    imagegen.Client
	artifacts storage.Store
	renderer  compose.Renderer
	prober    compose.Prober
	audio     speech.AudioProcessor
}

// New validates the options and constructs the server.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("api: store is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("api: artifact store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:       opts.Config,
		logger:    logging.NewComponentLogger(logger, "api"),
		store:     opts.Store,
		notifier:  opts.Notifier,
		llm:       opts.LLM,
		tts:       opts.TTS,
		images:    opts.Images,
		artifacts: opts.Artifacts,
		renderer:  opts.Renderer,
		prober:    opts.Prober,
		audio:     opts.Audio,
	}, nil
}

// Handler returns the route table for the API surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProject)
	mux.HandleFunc("/api/dimensions", s.handleDimensions)
	mux.HandleFunc("/api/research", s.handleResearch)
	mux.HandleFunc("/api/script", s.handleScript)
	mux.HandleFunc("/api/tts", s.handleTTS)
	mux.HandleFunc("/api/images", s.handleImages)
	mux.HandleFunc("/api/segments/regenerate", s.handleRegenerate)
	mux.HandleFunc("/api/compose", s.handleCompose)
	return mux
}

func (s *Server) researchHandler() *research.Handler {
	return research.New(s.cfg, s.llm)
}

func (s *Server) scriptHandler() *script.Handler {
	return script.New(s.cfg, s.store, s.llm)
}

func (s *Server) speechHandler() *speech.Handler {
	return speech.New(s.cfg, s.store, s.tts, s.artifacts, s.audio)
}

func (s *Server) visualsHandler() *visuals.Handler {
	return visuals.New(s.cfg, s.store, s.images, s.artifacts)
}

func (s *Server) composeHandler() *compose.Handler {
	return compose.New(s.cfg, s.store, s.artifacts, s.renderer, s.prober)
}

func (s *Server) heartbeat() time.Duration {
	return time.Duration(s.cfg.Pipeline.HeartbeatSeconds) * time.Second
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	projects := make(map[string]int, len(stats))
	for status, count := range stats {
		projects[string(status)] = count
	}

	handlers := []stage.Handler{
		s.researchHandler(),
		s.scriptHandler(),
		s.speechHandler(),
		s.visualsHandler(),
		s.composeHandler(),
	}
	stages := make([]StageHealth, 0, len(handlers))
	for _, handler := range handlers {
		health := handler.HealthCheck(r.Context())
		stages = append(stages, StageHealth{Stage: health.Name, Healthy: health.Ready, Detail: health.Detail})
	}

	binaries := deps.CheckBinaries(deps.Requirements(s.cfg))
	dependencies := make([]DependencyStatus, 0, len(binaries))
	for _, binary := range binaries {
		dependencies = append(dependencies, DependencyStatus{
			Name:      binary.Name,
			Command:   binary.Command,
			Available: binary.Available,
			Detail:    binary.Detail,
		})
	}

	s.writeJSON(w, http.StatusOK, StatusResponse{
		Running:      true,
		Database:     s.store.Path(),
		Projects:     projects,
		Stages:       stages,
		Dependencies: dependencies,
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var projects []*store.Project
		var err error
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, ok := store.ParseStatus(raw)
			if !ok {
				s.writeError(w, http.StatusBadRequest,
					fmt.Sprintf("unknown status %q; known statuses: %s", raw, knownStatuses()))
				return
			}
			projects, err = s.store.ListProjectsByStatus(r.Context(), status)
		} else {
			projects, err = s.store.ListProjects(r.Context())
		}
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]ProjectView, len(projects))
		for i, project := range projects {
			views[i] = FromProject(project)
		}
		s.writeJSON(w, http.StatusOK, ProjectListResponse{Projects: views})
	case http.MethodPost:
		var req CreateProjectRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Topic) == "" && strings.TrimSpace(req.DocumentContent) == "" {
			s.writeError(w, http.StatusBadRequest, "topic or documentContent is required")
			return
		}
		project, err := s.store.CreateProject(r.Context(), store.NewProjectParams{
			Topic:       strings.TrimSpace(req.Topic),
			Speaker:     strings.TrimSpace(req.Speaker),
			Speed:       req.Speed,
			ImageModel:  strings.TrimSpace(req.ImageModel),
			AspectRatio: strings.TrimSpace(req.AspectRatio),
			FullScript:  req.DocumentContent,
		})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("project created",
			logging.Int64(logging.FieldProjectID, project.ID),
			logging.String("topic", project.Topic),
		)
		s.writeJSON(w, http.StatusCreated, CreateProjectResponse{ProjectID: project.ID})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := s.store.GetProject(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if project == nil {
			s.writeError(w, http.StatusNotFound, "project not found")
			return
		}
		segments, err := s.store.SegmentsByProject(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, ProjectDetailResponse{
			Project:  FromProject(project),
			Segments: FromSegments(segments),
		})
	case http.MethodDelete:
		s.removeArtifacts(r.Context(), id)
		removed, err := s.store.RemoveProject(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !removed {
			s.writeError(w, http.StatusNotFound, "project not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// removeArtifacts deletes a project's stored media before its rows go. A
// failed removal is logged and skipped so deletion never strands the rows.
func (s *Server) removeArtifacts(ctx context.Context, projectID int64) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil || project == nil {
		return
	}
	segments, err := s.store.SegmentsByProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("load segments for artifact cleanup", logging.Error(err))
		segments = nil
	}

	urls := []string{project.VideoURL, project.CoverURL}
	for _, segment := range segments {
		urls = append(urls, segment.AudioURL, segment.ImageURL)
		for _, asset := range segment.Images() {
			urls = append(urls, asset.ImageURL)
		}
	}
	for _, url := range urls {
		if strings.TrimSpace(url) == "" {
			continue
		}
		if err := s.artifacts.Remove(ctx, url); err != nil {
			s.logger.Warn("remove project artifact",
				logging.Int64(logging.FieldProjectID, projectID),
				logging.String("url", url),
				logging.Error(err),
			)
		}
	}
}

// loadProject fetches the project or writes the appropriate error response,
// returning nil in that case.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request, id int64) *store.Project {
	if id <= 0 {
		s.writeError(w, http.StatusBadRequest, "projectId is required")
		return nil
	}
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if project == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("project %d not found", id))
		return nil
	}
	return project
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return false
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		s.writeError(w, http.StatusBadRequest, "parse request body: "+err.Error())
		return false
	}
	return true
}

func knownStatuses() string {
	statuses := store.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

// errorStatus maps service sentinel errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, services.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, errorStatus(err), services.Details(err).Message)
}
