package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"corpusd/internal/asr"
	"corpusd/internal/lister"
	"corpusd/internal/logging"
	"corpusd/internal/notifications"
	"corpusd/internal/services"
	"corpusd/internal/store"
)

// admissionMultiplier bounds how many items may be in flight across all
// three pools at once, relative to their combined capacity. A generous
// multiplier keeps the pools saturated without admitting the entire
// candidate set as live goroutines up front.
const admissionMultiplier = 2

// Orchestrator drives admitted Sources through the io -> asr -> db stage
// sequence using three independently bounded worker pools. One Orchestrator
// serves one Run at a time; it is not safe to call Run concurrently on the
// same instance.
type Orchestrator struct {
	Store    store.Store
	Lister   lister.Lister
	Notifier notifications.Service
	Logger   *slog.Logger

	IOStage  *ioStage
	ASRStage *asrStage
	DBStage  *dbStage

	LocalRecognizer  asr.Recognizer
	RemoteRecognizer asr.Recognizer

	Filters        lister.Filters
	ForceReprocess bool

	NIO  int
	NASR int
	NDB  int

	RetryMax      int
	BackoffBase   time.Duration
	RatePerMin    float64
	MaxCostPerRun float64
	GPUCount      int

	// Per-item wall-clock budgets for each stage; zero disables the deadline.
	IOTimeout  time.Duration
	ASRTimeout time.Duration
	DBTimeout  time.Duration
}

// Run enumerates channelRef through the configured Lister, admits
// not-yet-terminal candidates, applies the run's cost/routing decision, and
// drives every admitted item through the stage pipeline concurrently.
func (o *Orchestrator) Run(ctx context.Context, channelRef string) (RunSummary, error) {
	started := time.Now()
	summary := newRunSummary()
	logger := logging.NewComponentLogger(o.Logger, "orchestrator")

	candidates, err := o.collectCandidates(ctx, channelRef)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: collect candidates: %w", err)
	}
	summary.CandidateCount = len(candidates)

	if o.Notifier != nil {
		_ = o.Notifier.Publish(ctx, notifications.EventRunStarted, notifications.Payload{
			"candidate_count": len(candidates),
		})
	}

	decision, admitted := DecideRouting(candidates, o.RatePerMin, o.MaxCostPerRun, o.GPUCount)
	summary.RoutingMode = decision.Mode
	summary.EstimatedCostUSD = decision.EstimatedCostUSD
	summary.BudgetExhausted = decision.BudgetExhausted
	if decision.BudgetExhausted && o.Notifier != nil {
		_ = o.Notifier.Publish(ctx, notifications.EventBudgetExhausted, notifications.Payload{
			"cost_usd":         decision.EstimatedCostUSD,
			"max_cost_per_run": o.MaxCostPerRun,
		})
	}

	o.applyRouting(decision.Mode)

	logger.Info("run admitted",
		logging.String(logging.FieldEventType, "run_admitted"),
		logging.Int("candidate_count", len(candidates)),
		logging.Int("admitted_count", len(admitted)),
		logging.String("routing_mode", string(decision.Mode)))

	ioSem := semaphore.NewWeighted(int64(max(o.NIO, 1)))
	asrSem := semaphore.NewWeighted(int64(max(o.NASR, 1)))
	dbSem := semaphore.NewWeighted(int64(max(o.NDB, 1)))
	admission := semaphore.NewWeighted(int64(admissionMultiplier * max(o.NIO+o.NASR+o.NDB, 1)))

	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	sampler := logging.NewProgressSampler(0)
	completed := 0

	for _, meta := range admitted {
		if err := admission.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer admission.Release(1)
			outcome := o.runItem(groupCtx, logger, meta, ioSem, asrSem, dbSem)
			logItemOutcome(logger, meta.ExternalID, outcome)
			if outcome.status == store.StatusSkipped && o.Notifier != nil {
				_ = o.Notifier.Publish(groupCtx, notifications.EventSourceSkipped, notifications.Payload{
					"external_id":  meta.ExternalID,
					"source_title": meta.Title,
					"reason":       outcome.reason,
				})
			}
			mu.Lock()
			applyOutcome(&summary, outcome)
			completed++
			percent := float64(completed) / float64(len(admitted)) * 100
			if sampler.ShouldLog(percent, "ingest", "") {
				logger.Info("run progress",
					logging.String(logging.FieldEventType, "run_progress"),
					logging.Int("completed", completed),
					logging.Int("admitted", len(admitted)),
					logging.Float64("percent", percent))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, fmt.Errorf("orchestrator: run: %w", err)
	}

	summary.StartedAt = started
	summary.Elapsed = time.Since(started)

	if o.Notifier != nil {
		_ = o.Notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
			"done":     summary.Done,
			"skipped":  summary.Skipped,
			"failed":   summary.Errored,
			"cost_usd": summary.EstimatedCostUSD,
			"duration": summary.Elapsed,
		})
	}

	return summary, nil
}

type itemOutcome struct {
	status store.Status
	reason string
}

// logItemOutcome emits the per-item terminal event (done/skipped/error) to
// the structured log sink.
func logItemOutcome(logger *slog.Logger, externalID string, outcome itemOutcome) {
	switch outcome.status {
	case store.StatusDone:
		logger.Info("item done",
			logging.String(logging.FieldEventType, "item_done"),
			logging.String("external_id", externalID))
	case store.StatusSkipped:
		logger.Info("item skipped",
			logging.String(logging.FieldEventType, "item_skipped"),
			logging.String("external_id", externalID),
			logging.String("reason", outcome.reason))
	default:
		logging.WarnWithContext(logger, "item failed", "item_error",
			logging.String("external_id", externalID),
			logging.String("reason", outcome.reason))
	}
}

func applyOutcome(summary *RunSummary, outcome itemOutcome) {
	switch outcome.status {
	case store.StatusDone:
		summary.Done++
	case store.StatusSkipped:
		summary.recordSkip(outcome.reason)
	default:
		summary.Errored++
	}
}

// applyRouting points the ASR stage at the recognizer the sticky routing
// decision selected for this run.
func (o *Orchestrator) applyRouting(mode Mode) {
	if mode == ModeLocalGPU && o.LocalRecognizer != nil {
		o.ASRStage.Recognizer = o.LocalRecognizer
		return
	}
	if o.RemoteRecognizer != nil {
		o.ASRStage.Recognizer = o.RemoteRecognizer
	}
}

// collectCandidates enumerates the lister's push-based stream into a slice
// (routing needs the full candidate set to compute total cost) and drops
// anything already terminal in the store, unless ForceReprocess is set.
func (o *Orchestrator) collectCandidates(ctx context.Context, channelRef string) ([]lister.SourceMeta, error) {
	logger := logging.NewComponentLogger(o.Logger, "orchestrator")
	var all []lister.SourceMeta
	err := o.Lister.List(ctx, channelRef, o.Filters, func(meta lister.SourceMeta) error {
		all = append(all, meta)
		logger.Debug("item discovered",
			logging.String(logging.FieldEventType, "item_discovered"),
			logging.String("external_id", meta.ExternalID),
			logging.String("title", meta.Title))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if o.ForceReprocess || len(all) == 0 {
		return all, nil
	}

	ids := make([]string, len(all))
	for i, meta := range all {
		ids[i] = meta.ExternalID
	}
	statuses, err := o.Store.BatchCheckExists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("batch check exists: %w", err)
	}

	out := make([]lister.SourceMeta, 0, len(all))
	for _, meta := range all {
		if status, ok := statuses[meta.ExternalID]; ok && status.Terminal() {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// runItem drives one candidate through upsert, claim, and the three stages,
// retrying on transient failure up to RetryMax with exponential backoff.
// It never returns an error to the caller: every outcome, including
// exhausted retries, is reported via the returned itemOutcome so one
// misbehaving item cannot abort the run.
func (o *Orchestrator) runItem(ctx context.Context, logger *slog.Logger, meta lister.SourceMeta, ioSem, asrSem, dbSem *semaphore.Weighted) itemOutcome {
	externalID := meta.ExternalID
	src := sourceFromMeta(meta)

	if _, err := o.Store.UpsertSource(ctx, src); err != nil {
		logging.ErrorWithContext(logger, "upsert before claim failed", "admission_failed",
			logging.String("external_id", externalID), logging.Error(err))
		return itemOutcome{status: store.StatusError}
	}

	attempt := 0

	// A prior run may have left this item in error (retries remaining) or
	// in a stale in-flight status after a crash; reset it to pending so the
	// claim below can win. Exhausted-retry error items are skipped here
	// unless the run forces reprocessing.
	if existing, err := o.Store.GetSource(ctx, externalID); err == nil {
		if existing.Status.Terminal() && !o.ForceReprocess {
			return itemOutcome{status: store.StatusSkipped, reason: "already_processed"}
		}
		if existing.Status == store.StatusError && existing.RetryCount >= o.RetryMax && !o.ForceReprocess {
			return itemOutcome{status: store.StatusSkipped, reason: "max_retries"}
		}
		attempt = existing.RetryCount
		if existing.Status != store.StatusPending {
			reset := store.StatusUpdate{}
			if o.ForceReprocess {
				zero := 0
				reset.RetryCount = &zero
				attempt = 0
			}
			if err := o.Store.UpdateStatus(ctx, externalID, store.StatusPending, reset); err != nil {
				logging.ErrorWithContext(logger, "pending reset failed", "admission_failed",
					logging.String("external_id", externalID), logging.Error(err))
				return itemOutcome{status: store.StatusError}
			}
		}
	}

	for {
		claimed, err := o.Store.Claim(ctx, externalID, store.StatusPending, store.StatusDownloading)
		if err != nil {
			logging.WarnWithContext(logger, "claim failed, another worker owns this item", "claim_conflict",
				logging.String("external_id", externalID), logging.Error(err))
			return itemOutcome{status: store.StatusSkipped, reason: "claim_conflict"}
		}

		// A fresh WorkItem per attempt: transient artifacts from a failed
		// attempt never leak into the retry.
		item := &store.WorkItem{Source: claimed, Attempt: attempt}

		stageErr := o.runPipeline(ctx, item, ioSem, asrSem, dbSem)
		o.releaseAudio(logger, item)
		if stageErr == nil {
			// The DB stage itself may have written StatusError (embedding
			// degraded without exhausting the pipeline's own error path);
			// report whatever status it actually persisted.
			if item.Source.Status == store.StatusError {
				return itemOutcome{status: store.StatusError, reason: "embedding_degraded"}
			}
			return itemOutcome{status: store.StatusDone}
		}

		failureStatus := services.FailureStatus(stageErr)
		lastErr := stageErr.Error()

		if failureStatus == store.StatusSkipped {
			// Pin the retry counter so a later force-less run cannot be
			// tempted to re-attempt content that will never become readable.
			retryMax := o.RetryMax
			_ = o.Store.UpdateStatus(ctx, externalID, store.StatusSkipped, store.StatusUpdate{
				LastError:  &lastErr,
				RetryCount: &retryMax,
			})
			return itemOutcome{status: store.StatusSkipped, reason: services.Details(stageErr).Code}
		}

		attempt++
		retryCount := attempt
		_ = o.Store.UpdateStatus(ctx, externalID, store.StatusError, store.StatusUpdate{
			RetryCount: &retryCount,
			LastError:  &lastErr,
		})

		if attempt >= o.RetryMax {
			return itemOutcome{status: store.StatusError}
		}

		if err := sleepWithContext(ctx, ComputeBackoff(o.BackoffBase, attempt)); err != nil {
			return itemOutcome{status: store.StatusError}
		}

		if err := o.Store.UpdateStatus(ctx, externalID, store.StatusPending, store.StatusUpdate{}); err != nil {
			return itemOutcome{status: store.StatusError}
		}
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, item *store.WorkItem, ioSem, asrSem, dbSem *semaphore.Weighted) error {
	if err := withSemaphore(ctx, ioSem, func() error {
		return runStage(ctx, stageRunOptions{
			Logger: o.Logger, Store: o.Store, Notifier: o.Notifier,
			Handler: o.IOStage, StageName: "io", Processing: store.StatusDownloading, Item: item,
			Timeout: o.IOTimeout,
		})
	}); err != nil {
		return err
	}

	if err := withSemaphore(ctx, asrSem, func() error {
		return runStage(ctx, stageRunOptions{
			Logger: o.Logger, Store: o.Store, Notifier: o.Notifier,
			Handler: o.ASRStage, StageName: "asr", Processing: store.StatusTranscribed, Item: item,
			Timeout: o.ASRTimeout,
		})
	}); err != nil {
		return err
	}

	return withSemaphore(ctx, dbSem, func() error {
		return runStage(ctx, stageRunOptions{
			Logger: o.Logger, Store: o.Store, Notifier: o.Notifier,
			Handler: o.DBStage, StageName: "db", Processing: store.StatusUpserted, Item: item,
			Timeout: o.DBTimeout,
		})
	})
}

// releaseAudio deletes the item's acquired audio file after a pipeline
// attempt, success or failure, honoring the Acquirer's retention policy.
// Cleared from the item so a retry re-acquires from scratch.
func (o *Orchestrator) releaseAudio(logger *slog.Logger, item *store.WorkItem) {
	if item.AudioPath == "" || o.IOStage == nil || o.IOStage.Acquirer == nil {
		return
	}
	if err := o.IOStage.Acquirer.Release(item.AudioPath); err != nil {
		logging.WarnWithContext(logger, "audio release failed", "audio_release_failed",
			logging.String("external_id", item.Source.ExternalID),
			logging.String("path", item.AudioPath),
			logging.Error(err))
	}
	item.AudioPath = ""
}

func withSemaphore(ctx context.Context, sem *semaphore.Weighted, fn func() error) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("orchestrator: acquire pool slot: %w", err)
	}
	defer sem.Release(1)
	return fn()
}

func sourceFromMeta(meta lister.SourceMeta) store.Source {
	return store.Source{
		SourceType:   store.SourceTypeVideo,
		ExternalID:   meta.ExternalID,
		Title:        meta.Title,
		URL:          meta.URL,
		ChannelName:  meta.ChannelName,
		ChannelURL:   meta.ChannelURL,
		PublishedAt:  meta.PublishedAt,
		DurationS:    meta.DurationS,
		ViewCount:    meta.ViewCount,
		LikeCount:    meta.LikeCount,
		CommentCount: meta.CommentCount,
		Description:  meta.Description,
		ThumbnailURL: meta.ThumbnailURL,
		Tags:         meta.Tags,
	}
}
