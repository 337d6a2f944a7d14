package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"corpusd/internal/logging"
	"corpusd/internal/notifications"
	"corpusd/internal/services"
	"corpusd/internal/stage"
	"corpusd/internal/store"
)

// stageRunOptions bundles the collaborators and context a single stage
// invocation needs to run a WorkItem through one of the three worker pools.
type stageRunOptions struct {
	Logger     *slog.Logger
	Store      store.Store
	Notifier   notifications.Service
	Handler    stage.Handler
	StageName  string
	Processing store.Status
	Item       *store.WorkItem
	Timeout    time.Duration
}

// runStage transitions the item to its processing status, runs
// Prepare→Execute, and persists the outcome. On success the caller is
// responsible for the next status transition (stages don't all end in the
// same status — the caption fast-path and the embedding failure path both
// skip ahead). On failure it classifies the error via services.Details,
// publishes a notification, and returns the error for the caller's
// retry/skip decision.
func runStage(ctx context.Context, opts stageRunOptions) error {
	if opts.Handler == nil {
		return fmt.Errorf("orchestrator: stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("orchestrator: store is required")
	}
	if opts.Item == nil {
		return fmt.Errorf("orchestrator: work item is required")
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageCtx = services.WithItemID(stageCtx, opts.Item.ID())
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, opts.Timeout)
		defer cancel()
	}
	stageLogger := logging.WithContext(stageCtx, logging.NewComponentLogger(opts.Logger, opts.StageName))
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("external_id", opts.Item.Source.ExternalID),
		logging.String("processing_status", string(opts.Processing)))

	if err := opts.Store.UpdateStatus(stageCtx, opts.Item.Source.ExternalID, opts.Processing, store.StatusUpdate{}); err != nil {
		return fmt.Errorf("orchestrator: persist processing transition: %w", err)
	}
	opts.Item.Source.Status = opts.Processing

	// Failures notify on the parent context: the stage deadline may already
	// have expired by the time the notification goes out.
	if err := opts.Handler.Prepare(stageCtx, opts.Item); err != nil {
		return handleStageFailure(ctx, stageLogger, opts.Notifier, opts.StageName, opts.Item, classifyTimeout(ctx, stageCtx, opts.StageName, err))
	}
	if err := opts.Handler.Execute(stageCtx, opts.Item); err != nil {
		return handleStageFailure(ctx, stageLogger, opts.Notifier, opts.StageName, opts.Item, classifyTimeout(ctx, stageCtx, opts.StageName, err))
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("external_id", opts.Item.Source.ExternalID))
	return nil
}

// classifyTimeout rewraps a stage failure as a timeout error when the
// stage's per-item deadline expired but the run itself is still live, so
// the retry path treats it like any other transient stage failure instead
// of surfacing whatever partial error the interrupted external call threw.
func classifyTimeout(parent, stageCtx context.Context, stageName string, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, "deadline",
			"per-item wall-clock budget exceeded", err)
	}
	return err
}

func handleStageFailure(ctx context.Context, logger *slog.Logger, notifier notifications.Service, stageName string, item *store.WorkItem, stageErr error) error {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}

	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("external_id", item.Source.ExternalID),
		logging.String("error_kind", string(details.Kind)),
		logging.Error(stageErr))

	if notifier != nil {
		_ = notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"error":        stageErr,
			"context":      fmt.Sprintf("%s (%s)", stageName, item.Source.ExternalID),
			"source_title": item.Source.Title,
		})
	}

	return stageErr
}
