// Package tts adapts an OpenAI-compatible speech synthesis endpoint. Each
// call turns one segment's narration text into encoded audio bytes.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Client synthesizes speech for a single piece of text.
type Client interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Request describes one synthesis call.
type Request struct {
	Text string
	// Voice overrides the configured default when set.
	Voice string
	// Speed is a playback multiplier; 0 means the service default.
	Speed float64
	// Emotion is passed through as a style instruction for services that
	// support it; empty is fine.
	Emotion string
	// Pitch and Volume override the configured defaults when set.
	Pitch  string
	Volume string
}

// Result holds the synthesized audio.
type Result struct {
	Audio       []byte
	ContentType string
}

// HTTP posts to {base_url}/v1/audio/speech with bearer authentication.
type HTTP struct {
	baseURL       string
	apiKey        string
	defaultVoice  string
	defaultPitch  string
	defaultVolume string
	client        *http.Client
}

// NewHTTP builds a client from the tts configuration section.
func NewHTTP(cfg config.TTS) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "init", "tts.base_url is not set", nil)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "init", "tts.api_key is not set", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTP{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		defaultVoice:  cfg.DefaultVoice,
		defaultPitch:  strings.TrimSpace(cfg.Pitch),
		defaultVolume: strings.TrimSpace(cfg.Volume),
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type speechPayload struct {
	Input        string  `json:"input"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed,omitempty"`
	Pitch        string  `json:"pitch,omitempty"`
	Volume       string  `json:"volume,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	Format       string  `json:"response_format"`
}

func (h *HTTP) Synthesize(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, services.Wrap(services.ErrValidation, "tts", "synthesize", "empty narration text", nil)
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = h.defaultVoice
	}

	pitch := strings.TrimSpace(req.Pitch)
	if pitch == "" {
		pitch = h.defaultPitch
	}
	volume := strings.TrimSpace(req.Volume)
	if volume == "" {
		volume = h.defaultVolume
	}

	payload := speechPayload{
		Input:        text,
		Voice:        voice,
		Speed:        req.Speed,
		Pitch:        pitch,
		Volume:       volume,
		Instructions: strings.TrimSpace(req.Emotion),
		Format:       "mp3",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "tts", "synthesize", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return Result{}, services.Wrap(services.ErrUpstream, "tts", "synthesize", "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, services.Wrap(services.ErrTimeout, "tts", "synthesize", "request timed out", err)
		}
		return Result{}, services.Wrap(services.ErrUpstream, "tts", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, classify(resp.StatusCode, "synthesize", detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, services.Wrap(services.ErrUpstream, "tts", "synthesize", "read audio response", err)
	}
	if len(audio) == 0 {
		return Result{}, services.Wrap(services.ErrUpstream, "tts", "synthesize", "service returned empty audio", nil)
	}
	return Result{Audio: audio, ContentType: resp.Header.Get("Content-Type")}, nil
}

func classify(status int, operation string, detail []byte) error {
	message := fmt.Sprintf("service returned status %d", status)
	if len(detail) > 0 {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(string(detail)))
	}
	marker := services.ErrUpstream
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		marker = services.ErrValidation
	}
	return services.Wrap(marker, "tts", operation, message, nil)
}
