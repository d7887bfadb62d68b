// Package pipeline drives one stage of a project through its guarded
// status transitions: claim the project, run the handler, persist the
// result, and fail the project terminally when the handler errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/services"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/store"
)

// Options controls stage execution and project persistence behavior.
type Options struct {
	Logger    *slog.Logger
	Store     *store.Store
	Notifier  notifications.Service
	Events    sse.Sink
	Handler   stage.Handler
	StageName string
	// Expected is the status the project must hold for this stage to
	// claim it; a concurrent claim surfaces as store.ErrConflict.
	Expected   store.Status
	Processing store.Status
	Done       store.Status
	Project    *store.Project
}

// Run executes a stage against a project. The initial transition is a
// compare-and-set, so two racing invocations resolve to one winner and one
// conflict error; the loser performs no work.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return errors.New("project store is required")
	}
	if opts.Project == nil {
		return errors.New("project is required")
	}
	events := opts.Events
	if events == nil {
		events = sse.NopSink{}
	}

	stageCtx := logging.WithStage(services.WithProjectID(ctx, opts.Project.ID), opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}
	if aware, ok := opts.Handler.(stage.EventAware); ok {
		aware.SetEvents(events)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String("topic", strings.TrimSpace(opts.Project.Topic)),
	)

	if err := opts.Store.TransitionStatus(stageCtx, opts.Project.ID, opts.Expected, opts.Processing); err != nil {
		if errors.Is(err, store.ErrConflict) {
			stageLogger.Warn("stage skipped, project already claimed", logging.Error(err))
		}
		return err
	}
	opts.Project.Status = opts.Processing
	opts.Project.ErrorMessage = ""
	events.Send(sse.Progress(opts.StageName, 0, deriveStageLabel(opts.Processing)+" started"))

	if err := opts.Handler.Prepare(stageCtx, opts.Project); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, events, err)
	}
	if err := opts.Store.UpdateProject(stageCtx, opts.Project); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(stageCtx, opts.Project); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, events, err)
	}

	if err := opts.Store.UpdateProject(stageCtx, opts.Project); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	if err := opts.Store.TransitionStatus(stageCtx, opts.Project.ID, opts.Processing, opts.Done); err != nil {
		return fmt.Errorf("persist done transition: %w", err)
	}
	opts.Project.Status = opts.Done

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Done)),
	)
	events.Send(sse.Progress(opts.StageName, 100, deriveStageLabel(opts.Processing)+" completed"))

	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, events sse.Sink, stageErr error) error {
	message := "stage failed"
	if stageErr != nil {
		details := services.Details(stageErr)
		message = strings.TrimSpace(details.Message)
		if message == "" {
			message = strings.TrimSpace(stageErr.Error())
		}
	}
	opts.Project.SetFailed(message)

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(store.StatusFailed)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if err := opts.Store.MarkFailed(ctx, opts.Project.ID, message); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	events.Send(sse.Error(message))

	if opts.Notifier != nil && stageErr != nil {
		if err := opts.Notifier.NotifyStageFailed(ctx, opts.Project.ID, opts.Project.Topic, opts.StageName, stageErr); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}

func deriveStageLabel(status store.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
