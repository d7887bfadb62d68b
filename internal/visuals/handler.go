// Package visuals implements the image synthesis stage: every segment gets
// one or more generated images, persisted into the artifact store, with
// duration ratios that split the segment's clip time across its images.
package visuals

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"reelsmith/internal/batch"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/services/imagegen"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
)

const stageName = "generating_images"

// maxImagesPerSegment caps how many sub-images one segment may carry.
const maxImagesPerSegment = 3

// Handler generates segment imagery for a project.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	client    imagegen.Client
	artifacts storage.Store
	logger    *slog.Logger
	events    sse.Sink
}

// New constructs the visuals stage handler.
func New(cfg *config.Config, st *store.Store, client imagegen.Client, artifacts storage.Store) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		client:    client,
		artifacts: artifacts,
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
		return stage.Unhealthy(stageName, "image client not configured")
	}
	if h.artifacts == nil {
		return stage.Unhealthy(stageName, "artifact store not configured")
	}
	return stage.Healthy(stageName)
}

// Prepare verifies segments exist to illustrate.
func (h *Handler) Prepare(ctx context.Context, project *store.Project) error {
	if h.client == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "image client not configured", nil)
	}
	_, err := stage.LoadSegments(ctx, h.store, project)
	return err
}

// Execute illustrates every segment that is not already completed. Per
// segment failures are recorded and skipped; the stage fails only when no
// segment succeeds.
func (h *Handler) Execute(ctx context.Context, project *store.Project) error {
	segments, err := stage.LoadSegments(ctx, h.store, project)
	if err != nil {
		return err
	}

	var todo []*store.Segment
	for _, segment := range segments {
		if segment.ImageStatus != store.ItemCompleted {
			todo = append(todo, segment)
		}
	}
	if len(todo) == 0 {
		h.logger.Info("all segments already illustrated")
		return nil
	}

	results, summary, err := batch.Run(ctx, todo, func(ctx context.Context, _ int, segment *store.Segment) (struct{}, error) {
		return struct{}{}, h.illustrateSegment(ctx, project, segment, "")
	}, batch.Options{
		Concurrency: h.cfg.Images.Concurrency,
		Timeout:     time.Duration(h.cfg.Pipeline.ItemTimeoutSeconds) * time.Second,
		MaxAttempts: h.cfg.Pipeline.RetryMaxAttempts,
		BaseDelay:   time.Duration(h.cfg.Pipeline.RetryBaseDelayMS) * time.Millisecond,
		OnProgress: func(completed, total int, _ any) {
			h.events.Send(sse.ItemProgress(stageName, completed, total, fmt.Sprintf("segment %d/%d illustrated", completed, total)))
		},
	})
	if err != nil {
		return services.Wrap(services.ErrTimeout, stageName, "execute", "image generation interrupted", err)
	}

	for i, result := range results {
		if result.Err == nil {
			continue
		}
		segment := todo[i]
		segment.ImageStatus = store.ItemFailed
		if updateErr := h.store.UpdateSegment(ctx, segment); updateErr != nil {
			h.logger.Error("persist segment failure", logging.Error(updateErr))
		}
		h.logger.Warn("segment illustration failed",
			logging.Int(logging.FieldSegment, segment.Ord),
			logging.Error(result.Err),
		)
	}
	if summary.Succeeded == 0 {
		return services.Wrap(services.ErrUpstream, stageName, "execute", "every segment failed to illustrate", nil)
	}

	h.logger.Info("imagery generated",
		logging.Int("segments", len(todo)),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", len(summary.Failed)),
	)
	return nil
}

// RegenerateSegment re-illustrates a single segment, optionally with a
// caller-supplied prompt replacing the derived one.
func (h *Handler) RegenerateSegment(ctx context.Context, project *store.Project, segmentID int64, prompt string) (*store.Segment, error) {
	segment, err := h.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stageName, "regenerate", "load segment", err)
	}
	if segment == nil || segment.ProjectID != project.ID {
		return nil, services.Wrap(services.ErrNotFound, stageName, "regenerate", fmt.Sprintf("segment %d not found", segmentID), nil)
	}
	if err := h.illustrateSegment(ctx, project, segment, prompt); err != nil {
		segment.ImageStatus = store.ItemFailed
		if updateErr := h.store.UpdateSegment(ctx, segment); updateErr != nil {
			h.logger.Error("persist segment failure", logging.Error(updateErr))
		}
		return nil, err
	}
	return segment, nil
}

func (h *Handler) illustrateSegment(ctx context.Context, project *store.Project, segment *store.Segment, promptOverride string) error {
	segment.ImageStatus = store.ItemGenerating
	if err := h.store.UpdateSegment(ctx, segment); err != nil {
		return services.Wrap(services.ErrIO, stageName, "illustrate", "mark segment generating", err)
	}

	prompt := strings.TrimSpace(promptOverride)
	if prompt == "" {
		prompt = buildPrompt(project, segment)
	}
	count := imageCount(segment)
	width, height := aspectDimensions(project.AspectRatio)

	generated, err := h.client.Generate(ctx, imagegen.Request{
		Prompt: prompt,
		Model:  project.ImageModel,
		Width:  width,
		Height: height,
		Count:  count,
	})
	if err != nil {
		return err
	}

	urls, err := h.persistImages(ctx, project, generated)
	if err != nil {
		return err
	}

	assets := make([]store.ImageAsset, len(urls))
	ratio := 1.0 / float64(len(urls))
	accumulated := 0.0
	for i, url := range urls {
		share := ratio
		if i == len(urls)-1 {
			share = 1.0 - accumulated
		}
		assets[i] = store.ImageAsset{ImageURL: url, DurationRatio: share}
		accumulated += ratio
	}

	segment.ImagePrompt = prompt
	segment.ImageURL = urls[0]
	if len(assets) > 1 {
		if err := segment.SetImages(assets); err != nil {
			return services.Wrap(services.ErrIO, stageName, "illustrate", "encode image list", err)
		}
	} else {
		segment.ImagesJSON = ""
	}
	segment.ImageStatus = store.ItemCompleted
	if err := h.store.UpdateSegment(ctx, segment); err != nil {
		return services.Wrap(services.ErrIO, stageName, "illustrate", "persist segment imagery", err)
	}

	h.events.Send(sse.Chunk(stageName, map[string]any{
		"order":    segment.Ord,
		"imageUrl": segment.ImageURL,
		"images":   len(urls),
	}))
	return nil
}

// persistImages copies generated imagery into the artifact store so that
// expiring provider URLs never leak into project rows.
func (h *Handler) persistImages(ctx context.Context, project *store.Project, generated []imagegen.Image) ([]string, error) {
	category := fmt.Sprintf("images/%d", project.ID)
	workDir := filepath.Join(h.cfg.Paths.WorkDir, fmt.Sprintf("project-%d", project.ID))

	urls := make([]string, 0, len(generated))
	for _, image := range generated {
		switch {
		case len(image.Data) > 0:
			url, err := h.artifacts.Save(ctx, category, ".png", image.Data)
			if err != nil {
				return nil, err
			}
			urls = append(urls, url)
		case image.URL != "":
			local, err := h.artifacts.Localize(ctx, image.URL, workDir)
			if err != nil {
				return nil, err
			}
			url, err := h.artifacts.SaveFile(ctx, category, local)
			if err != nil {
				return nil, err
			}
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 {
		return nil, services.Wrap(services.ErrUpstream, stageName, "illustrate", "generation returned no usable images", nil)
	}
	return urls, nil
}

func buildPrompt(project *store.Project, segment *store.Segment) string {
	var builder strings.Builder
	builder.WriteString(styleDirective(segment.VisualStyle))
	builder.WriteString(" for a documentary about ")
	builder.WriteString(strings.TrimSpace(project.Topic))
	if title := strings.TrimSpace(segment.ChapterTitle); title != "" {
		builder.WriteString(". Scene: ")
		builder.WriteString(title)
	}
	if points := segment.KeyPoints(); len(points) > 0 {
		builder.WriteString(". Emphasize: ")
		builder.WriteString(strings.Join(points, "; "))
	}
	builder.WriteString(". No text or captions in the image.")
	return builder.String()
}

func styleDirective(style store.VisualStyle) string {
	switch style {
	case store.StyleInfographic:
		return "A clean modern infographic-style visual"
	case store.StylePhoto:
		return "A photorealistic cinematic photograph"
	case store.StyleDiagram:
		return "A clear technical diagram-style visual"
	default:
		return "A detailed editorial illustration"
	}
}

func imageCount(segment *store.Segment) int {
	count := len(segment.KeyPoints())
	if count < 1 {
		return 1
	}
	if count > maxImagesPerSegment {
		return maxImagesPerSegment
	}
	return count
}

func aspectDimensions(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "9:16":
		return 1080, 1920
	case "1:1":
		return 1024, 1024
	default:
		return 1920, 1080
	}
}
