// Package notifications pushes pipeline milestones to ntfy. When no topic
// is configured every call is a noop.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
)

const userAgent = "Reelsmith-Go/0.1.0"

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyStageFailed(ctx context.Context, projectID int64, topic, stageName string, err error) error
	NotifyVideoReady(ctx context.Context, projectID int64, topic, videoURL string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       endpoint,
		client:         &http.Client{Timeout: timeout},
		sendErrors:     cfg.Notifications.Errors,
		sendCompletion: cfg.Notifications.Completion,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	sendErrors     bool
	sendCompletion bool
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, projectID int64, topic, stageName string, failure error) error {
	if !n.sendErrors {
		return nil
	}
	detail := "unknown"
	if failure != nil {
		detail = strings.TrimSpace(failure.Error())
	}
	data := payload{
		title:    "Reelsmith - Stage Failed",
		message:  fmt.Sprintf("Project #%d (%s) failed during %s: %s", projectID, strings.TrimSpace(topic), stageName, detail),
		tags:     []string{"reelsmith", "error", stageName},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoReady(ctx context.Context, projectID int64, topic, videoURL string) error {
	if !n.sendCompletion {
		return nil
	}
	message := fmt.Sprintf("Video ready: %s (project #%d)", strings.TrimSpace(topic), projectID)
	if url := strings.TrimSpace(videoURL); url != "" {
		message = fmt.Sprintf("%s\n%s", message, url)
	}
	data := payload{
		title:    "Reelsmith - Video Ready",
		message:  message,
		tags:     []string{"reelsmith", "compose", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelsmith - Test",
		message:  "Notification system test",
		tags:     []string{"reelsmith", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStageFailed(context.Context, int64, string, string, error) error { return nil }
func (noopService) NotifyVideoReady(context.Context, int64, string, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                                { return nil }
