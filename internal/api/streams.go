package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/compose"
	"reelsmith/internal/logging"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/services"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/store"
)

// stageRun binds a stage handler to its status transitions.
type stageRun struct {
	name       string
	handler    stage.Handler
	expected   store.Status
	processing store.Status
	done       store.Status
}

// runStage streams one stage over the response. The stage runs on a context
// detached from the request, so a client disconnect stops the event feed but
// never the work; the project's persisted status stays authoritative.
// complete, when non-nil, supplies the terminal frame payload after success.
func (s *Server) runStage(w http.ResponseWriter, r *http.Request, project *store.Project, run stageRun, complete func(ctx context.Context) any) {
	if project.Status != run.expected {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project %d is %s, expected %s", project.ID, project.Status, run.expected))
		return
	}

	stream, err := sse.NewStream(w, s.heartbeat())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer stream.Close()

	// Each invocation gets a correlation id so interleaved stage logs can be
	// told apart when several streams run at once.
	work := services.WithRequestID(context.WithoutCancel(r.Context()), uuid.NewString())
	err = pipeline.Run(work, pipeline.Options{
		Logger:     s.logger,
		Store:      s.store,
		Notifier:   s.notifier,
		Events:     stream,
		Handler:    run.handler,
		StageName:  run.name,
		Expected:   run.expected,
		Processing: run.processing,
		Done:       run.done,
		Project:    project,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The pipeline logs conflicts without emitting a frame.
			stream.Send(sse.Error(fmt.Sprintf("project %d already claimed by another invocation", project.ID)))
		}
		return
	}
	if complete != nil {
		if payload := complete(work); payload != nil {
			stream.Send(sse.Complete(payload))
		}
	}
}

func (s *Server) handleDimensions(w http.ResponseWriter, r *http.Request) {
	var req DimensionsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}
	if store.IsTerminal(project.Status) {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project %d is %s and no longer accepts changes", project.ID, project.Status))
		return
	}
	if project.IsProcessing() {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project %d is %s; wait for the stage to finish", project.ID, project.Status))
		return
	}
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		project.Topic = topic
	}
	if strings.TrimSpace(project.Topic) == "" {
		s.writeError(w, http.StatusBadRequest, "project has no topic")
		return
	}

	stream, err := sse.NewStream(w, s.heartbeat())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer stream.Close()

	work := services.WithRequestID(context.WithoutCancel(r.Context()), uuid.NewString())
	work = logging.WithStage(services.WithProjectID(work, project.ID), "dimensions")
	handler := s.researchHandler()
	handler.SetLogger(logging.WithContext(work, s.logger))
	handler.SetEvents(stream)

	if err := handler.GenerateDimensions(work, project, req.MaxDimensions); err != nil {
		stream.Send(sse.Error(services.Details(err).Message))
		return
	}
	if err := s.store.UpdateProject(work, project); err != nil {
		stream.Send(sse.Error(services.Details(err).Message))
		return
	}
	stream.Send(sse.Complete(map[string]any{
		"projectId":  project.ID,
		"dimensions": project.Dimensions(),
	}))
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}

	handler := s.researchHandler()
	handler.SetEffort(req.ReasoningEffort)

	s.runStage(w, r, project, stageRun{
		name:       "researching",
		handler:    handler,
		expected:   store.StatusDraft,
		processing: store.StatusResearching,
		done:       store.StatusDraft,
	}, func(context.Context) any {
		findings := project.Findings()
		succeeded := 0
		for _, finding := range findings {
			if finding.Error == "" {
				succeeded++
			}
		}
		return map[string]any{
			"projectId":  project.ID,
			"status":     project.Status,
			"dimensions": len(findings),
			"succeeded":  succeeded,
		}
	})
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	var req ProjectStageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}

	s.runStage(w, r, project, stageRun{
		name:       "scripting",
		handler:    s.scriptHandler(),
		expected:   store.StatusDraft,
		processing: store.StatusScripting,
		done:       store.StatusDraft,
	}, func(ctx context.Context) any {
		segments, err := s.store.SegmentsByProject(ctx, project.ID)
		if err != nil {
			return map[string]any{"projectId": project.ID, "status": project.Status}
		}
		return map[string]any{
			"projectId": project.ID,
			"status":    project.Status,
			"segments":  len(segments),
		}
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ProjectStageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}

	s.runStage(w, r, project, stageRun{
		name:       "generating_tts",
		handler:    s.speechHandler(),
		expected:   store.StatusDraft,
		processing: store.StatusGeneratingTTS,
		done:       store.StatusDraft,
	}, func(ctx context.Context) any {
		return s.segmentSummary(ctx, project, func(segment *store.Segment) store.ItemStatus {
			return segment.TTSStatus
		})
	})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	var req ImagesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}

	if style := strings.TrimSpace(req.Style); style != "" {
		if err := s.applyStyle(r.Context(), project.ID, store.ParseVisualStyle(style)); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	s.runStage(w, r, project, stageRun{
		name:       "generating_images",
		handler:    s.visualsHandler(),
		expected:   store.StatusDraft,
		processing: store.StatusGeneratingImages,
		done:       store.StatusReadyForEdit,
	}, func(ctx context.Context) any {
		return s.segmentSummary(ctx, project, func(segment *store.Segment) store.ItemStatus {
			return segment.ImageStatus
		})
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.SegmentID <= 0 {
		s.writeError(w, http.StatusBadRequest, "segmentId is required")
		return
	}

	segment, err := s.store.GetSegment(r.Context(), req.SegmentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if segment == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("segment %d not found", req.SegmentID))
		return
	}
	project := s.loadProject(w, r, segment.ProjectID)
	if project == nil {
		return
	}
	if store.IsTerminal(project.Status) {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project %d is %s and no longer accepts changes", project.ID, project.Status))
		return
	}
	if project.IsProcessing() {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project %d is %s; wait for the stage to finish", project.ID, project.Status))
		return
	}

	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		if strings.TrimSpace(req.OverridePrompt) != "" {
			kind = "image"
		} else {
			kind = "tts"
		}
	}

	var updated *store.Segment
	switch kind {
	case "tts":
		updated, err = s.speechHandler().RegenerateSegment(r.Context(), project, segment.ID, req.OverrideText)
	case "image":
		updated, err = s.visualsHandler().RegenerateSegment(r.Context(), project, segment.ID, req.OverridePrompt)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown regeneration kind %q", kind))
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromSegment(updated))
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req ProjectStageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	project := s.loadProject(w, r, req.ProjectID)
	if project == nil {
		return
	}

	segments, err := s.store.SegmentsByProject(r.Context(), project.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(segments) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("project %d has no segments", project.ID))
		return
	}
	// Refuse before claiming the project so an incomplete segment set never
	// flips it to failed.
	if err := compose.CheckReady(segments); err != nil {
		var precondition *services.PreconditionError
		if errors.As(err, &precondition) {
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"error":           err.Error(),
				"missingSegments": precondition.Missing,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}

	s.runStage(w, r, project, stageRun{
		name:       "composing",
		handler:    s.composeHandler(),
		expected:   store.StatusReadyForEdit,
		processing: store.StatusComposing,
		done:       store.StatusCompleted,
	}, func(ctx context.Context) any {
		// The stage already emitted the terminal frame with the video URLs.
		if s.notifier != nil {
			if err := s.notifier.NotifyVideoReady(ctx, project.ID, project.Topic, project.VideoURL); err != nil {
				s.logger.Debug("completion notification failed", logging.Error(err))
			}
		}
		return nil
	})
}

// applyStyle rewrites the visual style of every segment that still needs an
// image. Completed segments keep the style they were rendered with.
func (s *Server) applyStyle(ctx context.Context, projectID int64, style store.VisualStyle) error {
	segments, err := s.store.SegmentsByProject(ctx, projectID)
	if err != nil {
		return services.Wrap(services.ErrIO, "generating_images", "apply style", "load segments", err)
	}
	for _, segment := range segments {
		if segment.ImageStatus == store.ItemCompleted || segment.VisualStyle == style {
			continue
		}
		segment.VisualStyle = style
		if err := s.store.UpdateSegment(ctx, segment); err != nil {
			return services.Wrap(services.ErrIO, "generating_images", "apply style", "persist segment", err)
		}
	}
	return nil
}

func (s *Server) segmentSummary(ctx context.Context, project *store.Project, status func(*store.Segment) store.ItemStatus) map[string]any {
	summary := map[string]any{
		"projectId": project.ID,
		"status":    project.Status,
	}
	segments, err := s.store.SegmentsByProject(ctx, project.ID)
	if err != nil {
		return summary
	}
	completed, failed := 0, 0
	for _, segment := range segments {
		switch status(segment) {
		case store.ItemCompleted:
			completed++
		case store.ItemFailed:
			failed++
		}
	}
	summary["segments"] = len(segments)
	summary["completed"] = completed
	summary["failed"] = failed
	return summary
}
