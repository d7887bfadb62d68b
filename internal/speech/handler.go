// Package speech implements the narration synthesis stage: every segment's
// text becomes an audio artifact with a measured duration, synthesized under
// a concurrency cap and normalized to the configured loudness.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/batch"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/services/tts"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
)

const stageName = "generating_tts"

// AudioProcessor measures and normalizes synthesized audio files.
type AudioProcessor interface {
	// Duration returns the decoded duration of the file in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// Normalize adjusts the file toward targetDB mean volume and returns
	// the path to use, which may be the input when no adjustment is needed.
	Normalize(ctx context.Context, path string, targetDB float64) (string, error)
}

// Handler synthesizes narration audio for a project's segments.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	client    tts.Client
	artifacts storage.Store
	audio     AudioProcessor
	logger    *slog.Logger
	events    sse.Sink
}

// New constructs the speech stage handler.
func New(cfg *config.Config, st *store.Store, client tts.Client, artifacts storage.Store, audio AudioProcessor) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		client:    client,
		artifacts: artifacts,
		audio:     audio,
		logger:    logging.NewNop(),
		events:    sse.NopSink{},
	}
}

func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *Handler) SetEvents(sink sse.Sink) {
	if sink != nil {
		h.events = sink
	}
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.client == nil {
		return stage.Unhealthy(stageName, "tts client not configured")
	}
	if h.artifacts == nil {
		return stage.Unhealthy(stageName, "artifact store not configured")
	}
	return stage.Healthy(stageName)
}

// Prepare verifies segments exist to synthesize.
func (h *Handler) Prepare(ctx context.Context, project *store.Project) error {
	if h.client == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "tts client not configured", nil)
	}
	_, err := stage.LoadSegments(ctx, h.store, project)
	return err
}

// Execute synthesizes every segment that is not already completed. Segments
// fail independently; the stage fails only when nothing succeeds, so a rerun
// picks up just the failed remainder.
func (h *Handler) Execute(ctx context.Context, project *store.Project) error {
	segments, err := stage.LoadSegments(ctx, h.store, project)
	if err != nil {
		return err
	}

	var todo []*store.Segment
	for _, segment := range segments {
		if segment.TTSStatus != store.ItemCompleted {
			todo = append(todo, segment)
		}
	}
	if len(todo) == 0 {
		h.logger.Info("all segments already synthesized")
		return nil
	}

	results, summary, err := batch.Run(ctx, todo, func(ctx context.Context, _ int, segment *store.Segment) (struct{}, error) {
		return struct{}{}, h.synthesizeSegment(ctx, project, segment)
	}, batch.Options{
		Concurrency: h.cfg.TTS.Concurrency,
		Timeout:     time.Duration(h.cfg.Pipeline.ItemTimeoutSeconds) * time.Second,
		MaxAttempts: h.cfg.Pipeline.RetryMaxAttempts,
		BaseDelay:   time.Duration(h.cfg.Pipeline.RetryBaseDelayMS) * time.Millisecond,
		OnProgress: func(completed, total int, _ any) {
			h.events.Send(sse.ItemProgress(stageName, completed, total, fmt.Sprintf("segment %d/%d synthesized", completed, total)))
		},
	})
	if err != nil {
		return services.Wrap(services.ErrTimeout, stageName, "execute", "synthesis interrupted", err)
	}

	for i, result := range results {
		if result.Err == nil {
			continue
		}
		segment := todo[i]
		segment.TTSStatus = store.ItemFailed
		if updateErr := h.store.UpdateSegment(ctx, segment); updateErr != nil {
			h.logger.Error("persist segment failure", logging.Error(updateErr))
		}
		h.logger.Warn("segment synthesis failed",
			logging.Int(logging.FieldSegment, segment.Ord),
			logging.Error(result.Err),
		)
	}
	if summary.Succeeded == 0 {
		return services.Wrap(services.ErrUpstream, stageName, "execute", "every segment failed to synthesize", nil)
	}

	h.logger.Info("narration synthesized",
		logging.Int("segments", len(todo)),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", len(summary.Failed)),
	)
	return nil
}

// RegenerateSegment re-synthesizes a single segment outside a full stage
// run. A non-empty overrideText replaces the segment's narration text before
// synthesis and is persisted with the new audio.
func (h *Handler) RegenerateSegment(ctx context.Context, project *store.Project, segmentID int64, overrideText string) (*store.Segment, error) {
	segment, err := h.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stageName, "regenerate", "load segment", err)
	}
	if segment == nil || segment.ProjectID != project.ID {
		return nil, services.Wrap(services.ErrNotFound, stageName, "regenerate", fmt.Sprintf("segment %d not found", segmentID), nil)
	}
	if text := strings.TrimSpace(overrideText); text != "" {
		segment.Text = text
	}
	if err := h.synthesizeSegment(ctx, project, segment); err != nil {
		segment.TTSStatus = store.ItemFailed
		if updateErr := h.store.UpdateSegment(ctx, segment); updateErr != nil {
			h.logger.Error("persist segment failure", logging.Error(updateErr))
		}
		return nil, err
	}
	return segment, nil
}

func (h *Handler) synthesizeSegment(ctx context.Context, project *store.Project, segment *store.Segment) error {
	segment.TTSStatus = store.ItemGenerating
	if err := h.store.UpdateSegment(ctx, segment); err != nil {
		return services.Wrap(services.ErrIO, stageName, "synthesize", "mark segment generating", err)
	}

	result, err := h.client.Synthesize(ctx, tts.Request{
		Text:  segment.Text,
		Voice: project.Speaker,
		Speed: project.Speed,
	})
	if err != nil {
		return err
	}

	workDir := filepath.Join(h.cfg.Paths.WorkDir, fmt.Sprintf("project-%d", project.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, stageName, "synthesize", "create work directory", err)
	}
	rawPath := filepath.Join(workDir, uuid.NewString()+".mp3")
	if err := os.WriteFile(rawPath, result.Audio, 0o644); err != nil {
		return services.Wrap(services.ErrIO, stageName, "synthesize", "write audio", err)
	}
	defer os.Remove(rawPath)

	finalPath := rawPath
	if h.audio != nil && h.cfg.TTS.TargetLevelDB != 0 {
		normalized, err := h.audio.Normalize(ctx, rawPath, h.cfg.TTS.TargetLevelDB)
		if err != nil {
			h.logger.Warn("loudness normalization failed, keeping raw audio", logging.Error(err))
		} else if normalized != rawPath {
			defer os.Remove(normalized)
			finalPath = normalized
		}
	}

	var duration float64
	if h.audio != nil {
		duration, err = h.audio.Duration(ctx, finalPath)
		if err != nil {
			return services.Wrap(services.ErrIO, stageName, "synthesize", "measure audio duration", err)
		}
	}
	if duration <= 0 {
		return services.Wrap(services.ErrUpstream, stageName, "synthesize",
			fmt.Sprintf("segment %d produced audio with no measurable duration", segment.Ord), nil)
	}

	url, err := h.artifacts.SaveFile(ctx, fmt.Sprintf("audio/%d", project.ID), finalPath)
	if err != nil {
		return err
	}

	segment.AudioURL = url
	segment.AudioDuration = duration
	segment.TTSStatus = store.ItemCompleted
	if err := h.store.UpdateSegment(ctx, segment); err != nil {
		return services.Wrap(services.ErrIO, stageName, "synthesize", "persist segment audio", err)
	}
	if strings.TrimSpace(url) != "" {
		h.events.Send(sse.Chunk(stageName, map[string]any{
			"order":         segment.Ord,
			"audioUrl":      url,
			"audioDuration": duration,
		}))
	}
	return nil
}
