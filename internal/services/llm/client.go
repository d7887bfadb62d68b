// Package llm adapts a chat-completion endpoint for the pipeline stages
// that need structured text generation: research dimensions, web-style
// research summaries, and script segmentation.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Client issues a single chat completion and returns the assistant text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one chat completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// Effort selects the reasoning effort level ("low", "medium", "high")
	// on models that support it. Empty leaves the endpoint default.
	Effort string
	// ForceJSON asks the endpoint for a JSON object response. Not every
	// gateway honors it, so callers still run ExtractJSON on the reply.
	ForceJSON bool
}

// OpenAI talks to any OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// New builds a client from the llm configuration section.
func New(cfg config.LLM) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "init", "llm.api_key is not set", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "init", "llm.model is not set", nil)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "empty prompt", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       c.model,
		Temperature: openai.Float(req.Temperature),
	}
	if effort := strings.TrimSpace(req.Effort); effort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(effort)
	}
	if req.ForceJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "llm", "complete", "chat completion timed out", err)
		}
		return "", services.Wrap(services.ErrUpstream, "llm", "complete", "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrUpstream, "llm", "complete", "empty completion response", nil)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrUpstream, "llm", "complete", "completion returned no content", nil)
	}
	return content, nil
}
