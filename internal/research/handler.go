// Package research implements the first pipeline stage: break a topic into
// independent research dimensions, investigate them concurrently, and merge
// the findings into one research document.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelsmith/internal/batch"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/store"
)

const stageName = "researching"

// Handler runs topic research for a project.
type Handler struct {
	cfg    *config.Config
	client llm.Client
	effort string
	logger *slog.Logger
	events sse.Sink
}

// New constructs the research stage handler.
func New(cfg *config.Config, client llm.Client) *Handler {
	return &Handler{
		cfg:    cfg,
		client: client,
		logger: logging.NewNop(),
		events: sse.NopSink{},
	}
}

// SetEffort selects the reasoning effort level for research completions.
func (h *Handler) SetEffort(effort string) {
	h.effort = strings.ToLower(strings.TrimSpace(effort))
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
	return stage.Healthy(stageName)
}

// Prepare validates the project has a researchable topic.
func (h *Handler) Prepare(ctx context.Context, project *store.Project) error {
	if h.client == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "llm client not configured", nil)
	}
	if strings.TrimSpace(project.Topic) == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "project has no topic", nil)
	}
	return nil
}

// Execute generates the dimension list, researches every dimension under the
// configured concurrency cap, and merges results in dimension order. The
// stage fails only when every dimension fails; partial results are kept with
// their errors recorded per finding.
func (h *Handler) Execute(ctx context.Context, project *store.Project) error {
	dims := project.Dimensions()
	if len(dims) == 0 {
		if err := h.GenerateDimensions(ctx, project, 0); err != nil {
			return err
		}
		dims = project.Dimensions()
	}

	results, summary, err := batch.Run(ctx, dims, func(ctx context.Context, _ int, dim store.Dimension) (string, error) {
		return h.researchDimension(ctx, project.Topic, dim)
	}, batch.Options{
		Concurrency: h.cfg.Pipeline.ResearchConcurrency,
		Timeout:     time.Duration(h.cfg.Pipeline.ItemTimeoutSeconds) * time.Second,
		MaxAttempts: h.cfg.Pipeline.RetryMaxAttempts,
		BaseDelay:   time.Duration(h.cfg.Pipeline.RetryBaseDelayMS) * time.Millisecond,
		OnProgress: func(completed, total int, _ any) {
			h.events.Send(sse.ItemProgress(stageName, completed, total, fmt.Sprintf("dimension %d/%d researched", completed, total)))
		},
	})
	if err != nil {
		return services.Wrap(services.ErrTimeout, stageName, "execute", "research interrupted", err)
	}

	findings := make([]store.Finding, len(dims))
	for i, dim := range dims {
		findings[i] = store.Finding{DimensionID: dim.ID, Title: dim.Title}
		if results[i].Err != nil {
			findings[i].Error = services.Details(results[i].Err).Message
			continue
		}
		findings[i].Content = results[i].Value
	}
	if summary.Succeeded == 0 {
		return services.Wrap(services.ErrUpstream, stageName, "execute", "every research dimension failed", nil)
	}
	if err := project.SetFindings(findings); err != nil {
		return services.Wrap(services.ErrIO, stageName, "execute", "encode findings", err)
	}
	project.ResearchResults = mergeFindings(findings)

	h.logger.Info(
		"research complete",
		logging.Int("dimensions", len(dims)),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", len(summary.Failed)),
	)
	return nil
}

// GenerateDimensions asks the model for the dimension breakdown and stores
// it on the project. maxDims of 0 falls back to the configured default. Also
// invoked directly for the standalone dimension-generation operation.
func (h *Handler) GenerateDimensions(ctx context.Context, project *store.Project, maxDims int) error {
	dims, err := h.generateDimensions(ctx, project.Topic, maxDims)
	if err != nil {
		return err
	}
	if err := project.SetDimensions(dims); err != nil {
		return services.Wrap(services.ErrIO, stageName, "generate dimensions", "encode dimensions", err)
	}
	h.events.Send(sse.Chunk(stageName, map[string]any{"dimensions": dims}))
	h.logger.Info("dimensions generated", logging.Int("count", len(dims)))
	return nil
}

func (h *Handler) generateDimensions(ctx context.Context, topic string, maxDims int) ([]store.Dimension, error) {
	if maxDims <= 0 {
		maxDims = h.cfg.Pipeline.MaxDimensionsDefault
	}
	if maxDims <= 0 {
		maxDims = 5
	}

	prompt := fmt.Sprintf(
		"Topic: %s\n\nBreak this topic into at most %d independent research dimensions that together would support a short narrated documentary video. "+
			"Each dimension needs a short title and a focused search query.\n\n"+
			"Respond with JSON only: {\"dimensions\":[{\"title\":\"...\",\"query\":\"...\"}]}",
		strings.TrimSpace(topic), maxDims)

	raw, err := h.client.Complete(ctx, llm.Request{
		System:      "You are a research planner for short documentary videos.",
		Prompt:      prompt,
		Temperature: 0.4,
		ForceJSON:   true,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var dims []store.Dimension
	for _, entry := range parsed.Get("dimensions").Array() {
		title := strings.TrimSpace(entry.Get("title").String())
		query := strings.TrimSpace(entry.Get("query").String())
		if title == "" {
			continue
		}
		if query == "" {
			query = title
		}
		dims = append(dims, store.Dimension{
			ID:    fmt.Sprintf("d%d", len(dims)+1),
			Title: title,
			Query: query,
		})
		if len(dims) == maxDims {
			break
		}
	}
	if len(dims) == 0 {
		return nil, services.Wrap(services.ErrUpstream, stageName, "generate dimensions", "model returned no dimensions", nil)
	}
	return dims, nil
}

func (h *Handler) researchDimension(ctx context.Context, topic string, dim store.Dimension) (string, error) {
	prompt := fmt.Sprintf(
		"Topic: %s\nDimension: %s\nSearch focus: %s\n\n"+
			"Write a dense, factual research summary for this dimension: concrete facts, dates, names, and numbers a scriptwriter can quote. "+
			"Plain prose, no headings, 150-300 words.",
		strings.TrimSpace(topic), dim.Title, dim.Query)

	content, err := h.client.Complete(ctx, llm.Request{
		System:      "You are a meticulous researcher. Only state facts you are confident about.",
		Prompt:      prompt,
		Temperature: 0.3,
		Effort:      h.effort,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", services.Wrap(services.ErrUpstream, stageName, "research dimension", fmt.Sprintf("empty summary for %s", dim.Title), nil)
	}
	return strings.TrimSpace(content), nil
}

// mergeFindings renders successful findings into one markdown document,
// preserving dimension order. Failed dimensions are omitted from the merged
// text but stay visible in the findings list.
func mergeFindings(findings []store.Finding) string {
	var builder strings.Builder
	for _, finding := range findings {
		if finding.Error != "" || strings.TrimSpace(finding.Content) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString("## ")
		builder.WriteString(finding.Title)
		builder.WriteString("\n\n")
		builder.WriteString(strings.TrimSpace(finding.Content))
	}
	return builder.String()
}
