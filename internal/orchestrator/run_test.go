package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"corpusd/internal/services"
	"corpusd/internal/stage"
	"corpusd/internal/store"
)

type blockingHandler struct{}

func (blockingHandler) Prepare(_ context.Context, _ *store.WorkItem) error { return nil }

func (blockingHandler) Execute(ctx context.Context, _ *store.WorkItem) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingHandler) HealthCheck(_ context.Context) stage.Health { return stage.Healthy("test") }

func TestRunStageDeadlineClassifiedAsRetryableTimeout(t *testing.T) {
	memStore := store.NewMemoryStore()
	if _, err := memStore.UpsertSource(context.Background(), store.Source{ExternalID: "abc"}); err != nil {
		t.Fatal(err)
	}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}}
	err := runStage(context.Background(), stageRunOptions{
		Store:      memStore,
		Handler:    blockingHandler{},
		StageName:  "asr",
		Processing: store.StatusTranscribed,
		Item:       item,
		Timeout:    10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected stage deadline to classify as timeout, got: %v", err)
	}
	if services.FailureStatus(err) != store.StatusError {
		t.Fatalf("timeout must stay retryable (error status), got %q", services.FailureStatus(err))
	}
}

func TestRunStageCancellationIsNotReclassifiedAsTimeout(t *testing.T) {
	memStore := store.NewMemoryStore()
	if _, err := memStore.UpsertSource(context.Background(), store.Source{ExternalID: "abc"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}}
	err := runStage(ctx, stageRunOptions{
		Store:      memStore,
		Handler:    blockingHandler{},
		StageName:  "asr",
		Processing: store.StatusTranscribed,
		Item:       item,
		Timeout:    time.Minute,
	})
	if err == nil {
		t.Fatal("expected error from canceled run")
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatalf("user cancellation must not be reported as a stage timeout: %v", err)
	}
}
