package stage

import (
	"context"
	"log/slog"

	"reelsmith/internal/sse"
	"reelsmith/internal/store"
)

// Handler describes the contract the pipeline needs from each stage.
type Handler interface {
	Prepare(context.Context, *store.Project) error
	Execute(context.Context, *store.Project) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets the pipeline hand a stage its contextual logger before
// execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// EventAware lets the pipeline hand a stage the sink for progress events
// before execution.
type EventAware interface {
	SetEvents(sse.Sink)
}
