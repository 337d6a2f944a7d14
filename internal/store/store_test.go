package store_test

import (
	"context"
	"testing"
	"time"

	"corpusd/internal/store"
)

func newTestSource(externalID string) store.Source {
	return store.Source{
		SourceType: store.SourceTypeVideo,
		ExternalID: externalID,
		Title:      "Sample Video " + externalID,
		URL:        "https://example.invalid/" + externalID,
		DurationS:  600,
	}
}

func TestUpsertSourcePreservesProcessingState(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	src := newTestSource("abc123")
	if _, err := st.UpsertSource(ctx, src); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	claimed, err := st.Claim(ctx, "abc123", store.StatusPending, store.StatusDownloading)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != store.StatusDownloading {
		t.Fatalf("expected status downloading, got %s", claimed.Status)
	}

	// Re-listing the same source must not regress its status.
	src.Title = "Sample Video abc123 (renamed)"
	if _, err := st.UpsertSource(ctx, src); err != nil {
		t.Fatalf("UpsertSource (re-list): %v", err)
	}

	got, err := st.GetSource(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Status != store.StatusDownloading {
		t.Fatalf("expected status to survive re-list, got %s", got.Status)
	}
	if got.Title != "Sample Video abc123 (renamed)" {
		t.Fatalf("expected title to refresh, got %s", got.Title)
	}
}

func TestClaimIsRaceSafe(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("race1")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	results := make(chan error, 2)
	claim := func() {
		_, err := st.Claim(ctx, "race1", store.StatusPending, store.StatusDownloading)
		results <- err
	}
	go claim()
	go claim()

	var wins, losses int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case err == store.ErrAlreadyClaimed:
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner and one loser, got wins=%d losses=%d", wins, losses)
	}
}

func TestClaimRejectsWrongExpectedStatus(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("xyz")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	if _, err := st.Claim(ctx, "xyz", store.StatusDownloading, store.StatusTranscribed); err != store.ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestUpdateStatusMergesOptionalFields(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("merge1")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	retry := 1
	if err := st.UpdateStatus(ctx, "merge1", store.StatusError, store.StatusUpdate{
		RetryCount: &retry,
		LastError:  strPtr("transient network failure"),
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := st.GetSource(ctx, "merge1")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Status != store.StatusError || got.RetryCount != 1 || got.LastError != "transient network failure" {
		t.Fatalf("unexpected source after update: %#v", got)
	}

	segCount := 42
	if err := st.UpdateStatus(ctx, "merge1", store.StatusOptimized, store.StatusUpdate{
		SegmentCount: &segCount,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err = st.GetSource(ctx, "merge1")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.SegmentCount != 42 {
		t.Fatalf("expected segment_count to update, got %d", got.SegmentCount)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count to survive unrelated update, got %d", got.RetryCount)
	}
}

func TestReplaceSegmentsIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("seg1")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	first := []store.Segment{
		{ExternalID: "seg1", StartSec: 0, EndSec: 5, Text: "hello there", SpeakerLabel: store.SpeakerChaffee},
		{ExternalID: "seg1", StartSec: 5, EndSec: 10, Text: "welcome back", SpeakerLabel: store.SpeakerGuest},
	}
	if err := st.ReplaceSegments(ctx, "seg1", first); err != nil {
		t.Fatalf("ReplaceSegments (first): %v", err)
	}
	if got := st.Segments("seg1"); len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}

	// A second pass with a different set must fully replace, not append.
	second := []store.Segment{
		{ExternalID: "seg1", StartSec: 0, EndSec: 8, Text: "hello there again", SpeakerLabel: store.SpeakerChaffee},
	}
	if err := st.ReplaceSegments(ctx, "seg1", second); err != nil {
		t.Fatalf("ReplaceSegments (second): %v", err)
	}
	got := st.Segments("seg1")
	if len(got) != 1 {
		t.Fatalf("expected replace to drop prior segments, got %d", len(got))
	}
	if got[0].Text != "hello there again" {
		t.Fatalf("unexpected retained segment: %#v", got[0])
	}

	src, err := st.GetSource(ctx, "seg1")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if src.SegmentCount != 1 {
		t.Fatalf("expected segment_count counter to match replaced set, got %d", src.SegmentCount)
	}

	// Calling again with the exact same set is a no-op in effect.
	if err := st.ReplaceSegments(ctx, "seg1", second); err != nil {
		t.Fatalf("ReplaceSegments (repeat): %v", err)
	}
	if got := st.Segments("seg1"); len(got) != 1 {
		t.Fatalf("expected idempotent repeat to still hold 1 segment, got %d", len(got))
	}
}

func TestReplaceSegmentsRejectsDuplicateNaturalKey(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("dup1")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	dup := []store.Segment{
		{ExternalID: "dup1", StartSec: 0, EndSec: 5, Text: "same text"},
		{ExternalID: "dup1", StartSec: 0, EndSec: 5, Text: "same text"},
	}
	if err := st.ReplaceSegments(ctx, "dup1", dup); err == nil {
		t.Fatal("expected duplicate natural key to be rejected")
	}
}

func TestBatchCheckExistsReportsKnownStatuses(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := st.UpsertSource(ctx, newTestSource("known1")); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	statuses, err := st.BatchCheckExists(ctx, []string{"known1", "unknown1"})
	if err != nil {
		t.Fatalf("BatchCheckExists: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected only the known id to be reported, got %#v", statuses)
	}
	if statuses["known1"] != store.StatusPending {
		t.Fatalf("expected pending, got %s", statuses["known1"])
	}
}

func TestCacheGetTreatsExpiredEntryAsMiss(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := st.CachePut(ctx, store.APICacheEntry{
		CacheKey:  "channel-uploads:xyz",
		ExpiresAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("CachePut: %v", err)
	}

	_, ok, err := st.CacheGet(ctx, "channel-uploads:xyz")
	if err != nil {
		t.Fatalf("CacheGet: %v", err)
	}
	if ok {
		t.Fatal("expected expired cache entry to be reported as a miss")
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := st.UpsertSource(ctx, newTestSource(id)); err != nil {
			t.Fatalf("UpsertSource: %v", err)
		}
	}
	if _, err := st.Claim(ctx, "s1", store.StatusPending, store.StatusDone); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[store.StatusPending] != 2 || stats[store.StatusDone] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func strPtr(s string) *string { return &s }
