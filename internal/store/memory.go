package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process fake satisfying Store, for unit tests that
// exercise orchestrator or stage logic without a database.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sources  map[string]Source // keyed by external_id
	segments map[string][]Segment
	cache    map[string]APICacheEntry
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:  make(map[string]Source),
		segments: make(map[string][]Segment),
		cache:    make(map[string]APICacheEntry),
	}
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) UpsertSource(_ context.Context, src Source) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sources[src.ExternalID]
	if ok {
		src.ID = existing.ID
		src.Status = existing.Status
		src.RetryCount = existing.RetryCount
		src.LastError = existing.LastError
		src.HasManualCaptions = existing.HasManualCaptions
		src.HasASR = existing.HasASR
		src.SegmentCount = existing.SegmentCount
		src.EmbeddedCount = existing.EmbeddedCount
		src.CreatedAt = existing.CreatedAt
		src.ProcessedAt = existing.ProcessedAt
	} else {
		m.nextID++
		src.ID = m.nextID
		src.Status = StatusPending
		src.CreatedAt = time.Now().UTC()
	}
	src.LastUpdated = time.Now().UTC()
	m.sources[src.ExternalID] = src
	return src.ID, nil
}

func (m *MemoryStore) GetSource(_ context.Context, externalID string) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[externalID]
	if !ok {
		return Source{}, ErrNotFound
	}
	return src, nil
}

func (m *MemoryStore) Claim(_ context.Context, externalID string, expected, processing Status) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[externalID]
	if !ok {
		return Source{}, ErrNotFound
	}
	if src.Status != expected {
		return Source{}, ErrAlreadyClaimed
	}
	src.Status = processing
	src.LastUpdated = time.Now().UTC()
	m.sources[externalID] = src
	return src, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, externalID string, status Status, fields StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[externalID]
	if !ok {
		return ErrNotFound
	}
	src.Status = status
	if fields.RetryCount != nil {
		src.RetryCount = *fields.RetryCount
	}
	if fields.LastError != nil {
		src.LastError = *fields.LastError
	}
	if fields.HasManualCaptions != nil {
		src.HasManualCaptions = *fields.HasManualCaptions
	}
	if fields.HasASR != nil {
		src.HasASR = *fields.HasASR
	}
	if fields.SegmentCount != nil {
		src.SegmentCount = *fields.SegmentCount
	}
	if fields.EmbeddedCount != nil {
		src.EmbeddedCount = *fields.EmbeddedCount
	}
	if fields.ProcessedAt != nil {
		src.ProcessedAt = fields.ProcessedAt
	}
	src.LastUpdated = time.Now().UTC()
	m.sources[externalID] = src
	return nil
}

func (m *MemoryStore) BatchCheckExists(_ context.Context, externalIDs []string) (map[string]Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]Status, len(externalIDs))
	for _, id := range externalIDs {
		if src, ok := m.sources[id]; ok {
			result[id] = src.Status
		}
	}
	return result, nil
}

func (m *MemoryStore) ReplaceSegments(_ context.Context, externalID string, segments []Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[externalID]
	if !ok {
		return ErrNotFound
	}

	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		key := naturalKey(externalID, seg)
		if _, dup := seen[key]; dup {
			return &naturalKeyConflict{externalID: externalID}
		}
		seen[key] = struct{}{}
	}

	embedded := 0
	for _, seg := range segments {
		if len(seg.Embedding) > 0 {
			embedded++
		}
	}

	cp := make([]Segment, len(segments))
	copy(cp, segments)
	m.segments[externalID] = cp
	src.SegmentCount = len(segments)
	src.EmbeddedCount = embedded
	src.LastUpdated = time.Now().UTC()
	m.sources[externalID] = src
	return nil
}

// Segments exposes the stored segments for a source, for test assertions.
func (m *MemoryStore) Segments(externalID string) []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Segment, len(m.segments[externalID]))
	copy(cp, m.segments[externalID])
	return cp
}

func (m *MemoryStore) EnsureVectorIndex(context.Context) error { return nil }

func (m *MemoryStore) CacheGet(_ context.Context, key string) (APICacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return APICacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (m *MemoryStore) CachePut(_ context.Context, entry APICacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[entry.CacheKey] = entry
	return nil
}

func (m *MemoryStore) Stats(context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[Status]int)
	for _, src := range m.sources {
		stats[src.Status]++
	}
	return stats, nil
}

func naturalKey(externalID string, seg Segment) string {
	return externalID + "|" + TextHash(seg.Text) + "|" + timeKey(seg.StartSec) + "|" + timeKey(seg.EndSec)
}

func timeKey(v float64) string {
	return time.Duration(v * float64(time.Second)).String()
}

type naturalKeyConflict struct {
	externalID string
}

func (e *naturalKeyConflict) Error() string {
	return "store: duplicate natural key for source " + e.externalID
}
