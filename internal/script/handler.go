// Package script implements the scripting stage: turn the research document
// into a narration script when one was not supplied, then split it into
// ordered segments with chapter titles, key points, and visual hints.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/store"
)

const stageName = "scripting"

var titleCaser = cases.Title(language.English)

// Handler segments a project's script.
type Handler struct {
	cfg    *config.Config
	store  *store.Store
	client llm.Client
	logger *slog.Logger
	events sse.Sink
}

// New constructs the scripting stage handler.
func New(cfg *config.Config, st *store.Store, client llm.Client) *Handler {
	return &Handler{
		cfg:    cfg,
		store:  st,
		client: client,
		logger: logging.NewNop(),
		events: sse.NopSink{},
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
		return stage.Unhealthy(stageName, "llm client not configured")
	}
	if h.store == nil {
		return stage.Unhealthy(stageName, "store not configured")
	}
	return stage.Healthy(stageName)
}

// Prepare verifies there is material to segment: either a supplied script or
// research output to write one from.
func (h *Handler) Prepare(ctx context.Context, project *store.Project) error {
	if h.client == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "llm client not configured", nil)
	}
	if strings.TrimSpace(project.FullScript) == "" && strings.TrimSpace(project.ResearchResults) == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare",
			"project has neither a script nor research results; run researching or supply a script", nil)
	}
	return nil
}

// Execute writes the narration script if needed, asks the model for the
// segment breakdown, and replaces the project's segments wholesale. Re-runs
// therefore always yield a dense, consistent segment list.
func (h *Handler) Execute(ctx context.Context, project *store.Project) error {
	if strings.TrimSpace(project.FullScript) == "" {
		script, err := h.writeScript(ctx, project)
		if err != nil {
			return err
		}
		project.FullScript = script
		h.events.Send(sse.Chunk(stageName, map[string]string{"fullScript": script}))
	}

	segments, err := h.segment(ctx, project)
	if err != nil {
		return err
	}
	if err := h.store.ReplaceSegments(ctx, project.ID, segments); err != nil {
		return services.Wrap(services.ErrIO, stageName, "execute", "replace segments", err)
	}

	for i, segment := range segments {
		h.events.Send(sse.Chunk(stageName, map[string]any{
			"order":        i,
			"chapterTitle": segment.ChapterTitle,
			"text":         segment.Text,
		}))
	}
	h.logger.Info("script segmented", logging.Int("segments", len(segments)))
	return nil
}

func (h *Handler) writeScript(ctx context.Context, project *store.Project) (string, error) {
	prompt := fmt.Sprintf(
		"Topic: %s\n\nResearch notes:\n%s\n\n"+
			"Write the narration script for a short documentary video on this topic. "+
			"Spoken prose only: no scene directions, no headings, no markdown. Hook the viewer in the first sentence.",
		strings.TrimSpace(project.Topic), strings.TrimSpace(project.ResearchResults))

	script, err := h.client.Complete(ctx, llm.Request{
		System:      "You are a documentary scriptwriter. You write tight, spoken narration.",
		Prompt:      prompt,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return "", services.Wrap(services.ErrUpstream, stageName, "write script", "model returned an empty script", nil)
	}
	return script, nil
}

func (h *Handler) segment(ctx context.Context, project *store.Project) ([]*store.Segment, error) {
	maxSegments := h.cfg.Pipeline.MaxSegmentsPerProject
	if maxSegments <= 0 {
		maxSegments = 50
	}

	prompt := fmt.Sprintf(
		"Narration script:\n%s\n\n"+
			"Split this script into sequential narration segments. Each segment is one continuous passage a narrator reads over a single visual. "+
			"Drop filler that adds nothing when spoken. Keep the original wording of what you keep. Use at most %d segments.\n\n"+
			"For each segment provide:\n"+
			"- text: the narration passage, verbatim from the script\n"+
			"- chapterTitle: a short title for the segment\n"+
			"- keyPoints: 1-3 short bullet phrases\n"+
			"- visualStyle: one of infographic, photo, illustration, diagram\n\n"+
			"Respond with JSON only: {\"segments\":[{\"text\":\"...\",\"chapterTitle\":\"...\",\"keyPoints\":[\"...\"],\"visualStyle\":\"...\"}]}",
		strings.TrimSpace(project.FullScript), maxSegments)

	raw, err := h.client.Complete(ctx, llm.Request{
		System:      "You are a video editor who plans narration beats.",
		Prompt:      prompt,
		Temperature: 0.3,
		ForceJSON:   true,
	})
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	charsPerSec := h.cfg.Pipeline.SpeakingCharsPerSec
	if charsPerSec <= 0 {
		charsPerSec = 4.0
	}

	var segments []*store.Segment
	for _, entry := range parsed.Get("segments").Array() {
		text := strings.TrimSpace(entry.Get("text").String())
		if text == "" {
			continue
		}
		segment := &store.Segment{
			Text:              text,
			ChapterTitle:      normalizeChapterTitle(entry.Get("chapterTitle").String()),
			VisualStyle:       store.ParseVisualStyle(entry.Get("visualStyle").String()),
			EstimatedDuration: float64(utf8.RuneCountInString(text)) / charsPerSec,
		}
		if points := llm.StringList(entry, "keyPoints"); len(points) > 0 {
			if err := segment.SetKeyPoints(points); err != nil {
				return nil, services.Wrap(services.ErrIO, stageName, "segment", "encode key points", err)
			}
		}
		segments = append(segments, segment)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrUpstream, stageName, "segment", "model returned no segments", nil)
	}
	if len(segments) > maxSegments {
		return nil, services.Wrap(services.ErrValidation, stageName, "segment",
			fmt.Sprintf("model returned %d segments, limit is %d", len(segments), maxSegments), nil)
	}
	return segments, nil
}

// normalizeChapterTitle title-cases all-lowercase titles and leaves
// deliberate casing alone.
func normalizeChapterTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	if title == strings.ToLower(title) {
		return titleCaser.String(title)
	}
	return title
}
