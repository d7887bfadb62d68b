// Package imagegen adapts an OpenAI-compatible image generation endpoint.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Client generates one or more images for a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) ([]Image, error)
}

// Request describes one generation call.
type Request struct {
	Prompt string
	// Model overrides the configured default when set.
	Model  string
	Width  int
	Height int
	// Count is the number of images to generate; 0 means one.
	Count int
}

// Image is a single generated image, delivered either as a URL the service
// hosts or as raw bytes when the service inlines the payload.
type Image struct {
	URL  string
	Data []byte
}

// HTTP posts to {base_url}/v1/images/generations with bearer authentication.
type HTTP struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewHTTP builds a client from the images configuration section.
func NewHTTP(cfg config.Images) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "imagegen", "init", "images.base_url is not set", nil)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "imagegen", "init", "images.api_key is not set", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTP{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

type generationPayload struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type generationResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (h *HTTP) Generate(ctx context.Context, req Request) ([]Image, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "imagegen", "generate", "empty prompt", nil)
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = h.defaultModel
	}

	payload := generationPayload{Prompt: prompt, Model: model, N: count}
	if req.Width > 0 && req.Height > 0 {
		payload.Size = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "imagegen", "generate", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "imagegen", "generate", "request timed out", err)
		}
		return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		marker := services.ErrUpstream
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "imagegen", "generate", fmt.Sprintf("service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "decode response", err)
	}
	if len(decoded.Data) == 0 {
		return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "service returned no images", nil)
	}

	images := make([]Image, 0, len(decoded.Data))
	for _, entry := range decoded.Data {
		switch {
		case strings.TrimSpace(entry.URL) != "":
			images = append(images, Image{URL: strings.TrimSpace(entry.URL)})
		case entry.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(entry.B64JSON)
			if err != nil {
				return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "decode inline image", err)
			}
			images = append(images, Image{Data: data})
		}
	}
	if len(images) == 0 {
		return nil, services.Wrap(services.ErrUpstream, "imagegen", "generate", "service returned empty image entries", nil)
	}
	return images, nil
}
