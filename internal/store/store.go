package store

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyClaimed is returned by Claim when another worker has already
// moved the source out of the expected starting status.
var ErrAlreadyClaimed = errors.New("store: source already claimed")

// ErrNotFound is returned when a lookup by external id matches no row.
var ErrNotFound = errors.New("store: source not found")

// StatusUpdate carries the optional fields a status transition may also
// persist, so a single statement can move the status and record counters,
// errors, or flags atomically.
type StatusUpdate struct {
	RetryCount        *int
	LastError         *string
	HasManualCaptions *bool
	HasASR            *bool
	SegmentCount      *int
	EmbeddedCount     *int
	ProcessedAt       *time.Time
}

// Store is the narrow persistence contract the Pipeline Orchestrator and its
// stage handlers depend on. PostgresStore is the production implementation;
// MemoryStore is a fake for tests.
type Store interface {
	// UpsertSource is idempotent on (source_type, external_id) and returns
	// the row id, inserting on first sight and otherwise refreshing the
	// enrichable metadata fields without disturbing processing state.
	UpsertSource(ctx context.Context, src Source) (int64, error)

	// GetSource returns the persisted state for an external id, or
	// ErrNotFound.
	GetSource(ctx context.Context, externalID string) (Source, error)

	// Claim atomically advances a source from expected to processing,
	// returning ErrAlreadyClaimed if a concurrent worker moved it first.
	// The orchestrator uses it to move a source out of pending; later
	// in-run statuses are written with UpdateStatus. It is the correctness
	// net for N-worker pools sharing one sources table.
	Claim(ctx context.Context, externalID string, expected, processing Status) (Source, error)

	// UpdateStatus persists a status transition plus any optional fields in
	// a single statement.
	UpdateStatus(ctx context.Context, externalID string, status Status, fields StatusUpdate) error

	// BatchCheckExists reports the current status of every external id that
	// already has a row, letting the orchestrator filter done/max-retried
	// items before enqueueing.
	BatchCheckExists(ctx context.Context, externalIDs []string) (map[string]Status, error)

	// ReplaceSegments atomically deletes a source's prior segments and
	// inserts the new set; this is the idempotence anchor for crash
	// recovery and forced reprocessing.
	ReplaceSegments(ctx context.Context, externalID string, segments []Segment) error

	// EnsureVectorIndex lazily creates the ANN index once enough embedded
	// rows exist; re-running is a no-op.
	EnsureVectorIndex(ctx context.Context) error

	// CacheGet and CachePut back the read-through api_cache table used by
	// quota-sensitive source-lister backends.
	CacheGet(ctx context.Context, key string) (APICacheEntry, bool, error)
	CachePut(ctx context.Context, entry APICacheEntry) error

	// Stats returns the current count of sources per status, for run
	// summaries and health reporting.
	Stats(ctx context.Context) (map[Status]int, error)

	Close()
}
