package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"corpusd/internal/logging"
	"corpusd/internal/services"
	"corpusd/internal/stage"
	"corpusd/internal/store"
)

// vectorIndexCheckEvery bounds how often the DB stage probes
// EnsureVectorIndex; it is a cheap no-op once the index exists, but there
// is no need to call it on every single completion.
const vectorIndexCheckEvery = 20

// dbStage upserts the Source, atomically replaces its segments, and marks
// the item done in one logical unit. It is the only stage that upserts
// source metadata and writes segments; status transitions are also written
// by the orchestrator and the ASR stage.
type dbStage struct {
	Store  store.Store
	logger *slog.Logger

	completions atomic.Int64
}

// NewDBStage constructs the DB worker pool's stage handler.
func NewDBStage(st store.Store) *dbStage {
	return &dbStage{Store: st}
}

func (s *dbStage) SetLogger(l *slog.Logger) { s.logger = l }

func (s *dbStage) Prepare(_ context.Context, item *store.WorkItem) error {
	if item.Source.ExternalID == "" {
		return services.Wrap(services.ErrValidation, "db", "prepare", "missing external id", nil)
	}
	return nil
}

func (s *dbStage) Execute(ctx context.Context, item *store.WorkItem) error {
	logger := logging.NewComponentLogger(s.logger, "db")

	id, err := s.Store.UpsertSource(ctx, item.Source)
	if err != nil {
		return services.Wrap(services.ErrTransient, "db", "upsert_source", "source upsert failed", err)
	}
	item.Source.ID = id

	if err := s.Store.ReplaceSegments(ctx, item.Source.ExternalID, item.OptimizedSegments); err != nil {
		return services.Wrap(services.ErrTransient, "db", "replace_segments", "segment replace failed", err)
	}

	segmentCount := len(item.OptimizedSegments)
	embeddedCount := 0
	for _, seg := range item.OptimizedSegments {
		if len(seg.Embedding) > 0 {
			embeddedCount++
		}
	}
	now := time.Now().UTC()

	// A Source whose embedding batch exhausted its retries is stored with
	// its segments (sans vectors) but left in StatusError rather than
	// StatusDone: done is terminal, and this Source still needs a later
	// re-embedding pass to pick up the missing vectors.
	usedCaptions := item.UsedManualCaptions
	usedASR := !item.UsedManualCaptions

	finalStatus := store.StatusDone
	update := store.StatusUpdate{
		SegmentCount:      &segmentCount,
		EmbeddedCount:     &embeddedCount,
		ProcessedAt:       &now,
		HasManualCaptions: &usedCaptions,
		HasASR:            &usedASR,
	}
	if item.EmbeddingDegraded {
		finalStatus = store.StatusError
		lastError := "embedding failed after exhausting retries; segments stored without vectors, pending re-embedding"
		update.LastError = &lastError
		logging.WarnWithContext(logger, "marking source error after embedding degrade", "embedding_degraded_terminal",
			logging.String("external_id", item.Source.ExternalID))
	}

	if err := s.Store.UpdateStatus(ctx, item.Source.ExternalID, finalStatus, update); err != nil {
		return services.Wrap(services.ErrTransient, "db", "mark_done", "final status update failed", err)
	}
	item.Source.Status = finalStatus

	if s.completions.Add(1)%vectorIndexCheckEvery == 0 {
		if err := s.Store.EnsureVectorIndex(ctx); err != nil {
			logging.WarnWithContext(logger, "vector index maintenance failed", "vector_index_maintenance_failed",
				logging.Error(err))
		}
	}

	return nil
}

func (s *dbStage) HealthCheck(_ context.Context) stage.Health {
	if s.Store == nil {
		return stage.Unhealthy("db", "store not configured")
	}
	return stage.Healthy("db")
}
