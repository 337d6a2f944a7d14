package stage

import (
	"context"
	"log/slog"

	"corpusd/internal/store"
)

// Handler describes the contract the Pipeline Orchestrator needs from each
// worker-pool stage (I/O, ASR, DB).
type Handler interface {
	Prepare(context.Context, *store.WorkItem) error
	Execute(context.Context, *store.WorkItem) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that accept a per-item logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
