// Package compose implements the final stage: render every segment into an
// audio-synced letterboxed clip, stitch the clips into one video, extract a
// cover frame, and publish both artifacts.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/services"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
)

const stageName = "composing"

// Renderer is the slice of the ffmpeg client composition needs.
type Renderer interface {
	RenderSlide(ctx context.Context, spec ffmpeg.SlideSpec) error
	Concat(ctx context.Context, clipPaths []string, output string) error
	ConcatWithTransition(ctx context.Context, first, second string, firstDuration float64, transition string, output string) error
	MuxAudio(ctx context.Context, videoPath, audioPath, output string) error
	ExtractCover(ctx context.Context, videoPath, output string) error
}

// Prober reports the pixel dimensions of an image or video file.
type Prober interface {
	Dimensions(ctx context.Context, path string) (width, height int, err error)
}

// Handler renders the final video for a project.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	artifacts storage.Store
	renderer  Renderer
	prober    Prober
	logger    *slog.Logger
	events    sse.Sink
}

// New constructs the compose stage handler.
func New(cfg *config.Config, st *store.Store, artifacts storage.Store, renderer Renderer, prober Prober) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		artifacts: artifacts,
		renderer:  renderer,
		prober:    prober,
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
	if h.renderer == nil {
		return stage.Unhealthy(stageName, "renderer not configured")
	}
	if h.artifacts == nil {
		return stage.Unhealthy(stageName, "artifact store not configured")
	}
	return stage.Healthy(stageName)
}

// Prepare blocks composition until every segment carries audio and imagery,
// reporting the offending segment ordinals.
func (h *Handler) Prepare(ctx context.Context, project *store.Project) error {
	segments, err := stage.LoadSegments(ctx, h.store, project)
	if err != nil {
		return err
	}
	return CheckReady(segments)
}

// CheckReady returns a PreconditionError listing segments that cannot be
// rendered yet. Exposed so the API can refuse composition without claiming
// the project.
func CheckReady(segments []*store.Segment) error {
	var missing []int
	for _, segment := range segments {
		if !segment.ReadyForCompose() {
			missing = append(missing, segment.Ord)
		}
	}
	if len(missing) > 0 {
		return services.NewPreconditionError("compose", missing)
	}
	return nil
}

// Execute renders one clip per segment in order, joins them, extracts the
// cover, and records the published URLs and total duration on the project.
func (h *Handler) Execute(ctx context.Context, project *store.Project) error {
	segments, err := stage.LoadSegments(ctx, h.store, project)
	if err != nil {
		return err
	}
	if err := CheckReady(segments); err != nil {
		return err
	}

	workDir := filepath.Join(h.cfg.Paths.WorkDir, fmt.Sprintf("compose-%d", project.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, stageName, "execute", "create work directory", err)
	}
	defer os.RemoveAll(workDir)

	width, height, err := h.resolveFrame(ctx, segments[0], workDir)
	if err != nil {
		return err
	}
	h.logger.Info("composition frame resolved",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Int("segments", len(segments)),
	)

	clips := make([]string, len(segments))
	durations := make([]float64, len(segments))
	for i, segment := range segments {
		clip, duration, err := h.renderSegment(ctx, segment, workDir, width, height)
		if err != nil {
			return err
		}
		clips[i] = clip
		durations[i] = duration
		h.events.Send(sse.ItemProgress(stageName, i+1, len(segments), fmt.Sprintf("clip %d/%d rendered", i+1, len(segments))))
	}

	finalPath := filepath.Join(workDir, "final.mp4")
	total, err := h.join(ctx, clips, durations, finalPath, workDir)
	if err != nil {
		return err
	}

	coverPath := filepath.Join(workDir, "cover.jpg")
	if err := h.renderer.ExtractCover(ctx, finalPath, coverPath); err != nil {
		return services.Wrap(services.ErrIO, stageName, "execute", "extract cover frame", err)
	}

	videoURL, err := h.artifacts.SaveFile(ctx, fmt.Sprintf("video/%d", project.ID), finalPath)
	if err != nil {
		return err
	}
	coverURL, err := h.artifacts.SaveFile(ctx, fmt.Sprintf("covers/%d", project.ID), coverPath)
	if err != nil {
		return err
	}

	project.VideoURL = videoURL
	project.CoverURL = coverURL
	project.Duration = total

	h.events.Send(sse.Complete(map[string]any{
		"videoUrl": videoURL,
		"coverUrl": coverURL,
		"duration": total,
	}))
	h.logger.Info("video composed",
		logging.Float64("duration", total),
		logging.String("video_url", videoURL),
	)
	return nil
}

// resolveFrame infers the output resolution from the first segment's first
// image: landscape sources render at 1920x1080, portrait at 1080x1920,
// square at 1080x1080.
func (h *Handler) resolveFrame(ctx context.Context, first *store.Segment, workDir string) (int, int, error) {
	imageURL := first.ImageURL
	if imageURL == "" {
		if images := first.Images(); len(images) > 0 {
			imageURL = images[0].ImageURL
		}
	}
	local, err := h.artifacts.Localize(ctx, imageURL, workDir)
	if err != nil {
		return 0, 0, err
	}
	width, height, err := h.prober.Dimensions(ctx, local)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrIO, stageName, "resolve frame", "probe first image", err)
	}
	switch {
	case width > height:
		return 1920, 1080, nil
	case height > width:
		return 1080, 1920, nil
	default:
		return 1080, 1080, nil
	}
}

// renderSegment produces one clip whose length is the narration plus the
// configured buffer. Multi-image segments split that length by duration
// ratio into silent sub-clips joined before the narration is muxed under.
func (h *Handler) renderSegment(ctx context.Context, segment *store.Segment, workDir string, width, height int) (string, float64, error) {
	audioPath, err := h.artifacts.Localize(ctx, segment.AudioURL, workDir)
	if err != nil {
		return "", 0, err
	}

	buffer := h.cfg.Pipeline.ClipBufferSeconds
	if buffer < 0 {
		buffer = 0
	}
	clipDuration := segment.AudioDuration + buffer
	output := filepath.Join(workDir, fmt.Sprintf("segment-%03d.mp4", segment.Ord))

	images := segment.Images()
	if len(images) <= 1 {
		imageURL := segment.ImageURL
		if imageURL == "" && len(images) == 1 {
			imageURL = images[0].ImageURL
		}
		imagePath, err := h.artifacts.Localize(ctx, imageURL, workDir)
		if err != nil {
			return "", 0, err
		}
		if err := h.renderer.RenderSlide(ctx, ffmpeg.SlideSpec{
			ImagePath: imagePath,
			AudioPath: audioPath,
			Duration:  clipDuration,
			Width:     width,
			Height:    height,
			Output:    output,
		}); err != nil {
			return "", 0, services.Wrap(services.ErrIO, stageName, "render segment",
				fmt.Sprintf("render clip for segment %d", segment.Ord), err)
		}
		return output, clipDuration, nil
	}

	subClips := make([]string, len(images))
	for i, asset := range images {
		imagePath, err := h.artifacts.Localize(ctx, asset.ImageURL, workDir)
		if err != nil {
			return "", 0, err
		}
		subClips[i] = filepath.Join(workDir, fmt.Sprintf("segment-%03d-%02d.mp4", segment.Ord, i))
		if err := h.renderer.RenderSlide(ctx, ffmpeg.SlideSpec{
			ImagePath: imagePath,
			Duration:  asset.DurationRatio * clipDuration,
			Width:     width,
			Height:    height,
			Output:    subClips[i],
		}); err != nil {
			return "", 0, services.Wrap(services.ErrIO, stageName, "render segment",
				fmt.Sprintf("render sub-clip %d of segment %d", i, segment.Ord), err)
		}
	}

	silent := filepath.Join(workDir, fmt.Sprintf("segment-%03d-silent.mp4", segment.Ord))
	if err := h.renderer.Concat(ctx, subClips, silent); err != nil {
		return "", 0, services.Wrap(services.ErrIO, stageName, "render segment",
			fmt.Sprintf("join sub-clips of segment %d", segment.Ord), err)
	}
	if err := h.renderer.MuxAudio(ctx, silent, audioPath, output); err != nil {
		return "", 0, services.Wrap(services.ErrIO, stageName, "render segment",
			fmt.Sprintf("mux narration into segment %d", segment.Ord), err)
	}
	return output, clipDuration, nil
}

// join stitches segment clips and returns the stitched video's duration.
// Without a transition the concat demuxer stream-copies and the duration is
// the clip sum; with one the clips are folded pairwise through the
// re-encoding transition path, each fold overlapping by the transition length.
func (h *Handler) join(ctx context.Context, clips []string, durations []float64, output string, workDir string) (float64, error) {
	total := 0.0
	for _, duration := range durations {
		total += duration
	}

	transition := strings.TrimSpace(h.cfg.Compose.Transition)
	if transition == "" || len(clips) == 1 {
		if err := h.renderer.Concat(ctx, clips, output); err != nil {
			return 0, services.Wrap(services.ErrIO, stageName, "join", "concatenate clips", err)
		}
		return total, nil
	}

	current := clips[0]
	length := durations[0]
	for i := 1; i < len(clips); i++ {
		next := output
		if i < len(clips)-1 {
			next = filepath.Join(workDir, fmt.Sprintf("join-%03d.mp4", i))
		}
		if err := h.renderer.ConcatWithTransition(ctx, current, clips[i], length, transition, next); err != nil {
			return 0, services.Wrap(services.ErrIO, stageName, "join",
				fmt.Sprintf("transition between clips %d and %d", i-1, i), err)
		}
		current = next
		length += durations[i] - ffmpeg.TransitionSeconds
	}
	return length, nil
}
