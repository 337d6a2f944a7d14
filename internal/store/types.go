package store

import (
	"encoding/json"
	"time"
)

// SpeakerLabel identifies which speaker a Segment is attributed to.
type SpeakerLabel string

const (
	SpeakerChaffee SpeakerLabel = "CHAFFEE"
	SpeakerGuest   SpeakerLabel = "GUEST"
	SpeakerUnknown SpeakerLabel = "UNKNOWN"
)

// SourceType distinguishes the catalogue the item was discovered in. The
// ingestion daemon currently only ever sees one, but the column mirrors the
// original schema's composite natural key.
type SourceType string

const (
	SourceTypeVideo SourceType = "video"
)

// Source is a single ingestible item: one long-form video and its processing
// state. It is mutated only by the Orchestrator through the state machine.
type Source struct {
	ID             int64
	SourceType     SourceType
	ExternalID     string
	Title          string
	URL            string
	ChannelName    string
	ChannelURL     string
	PublishedAt    time.Time
	DurationS      int
	ViewCount      int64
	LikeCount      int64
	CommentCount   int64
	Description    string
	ThumbnailURL   string
	Tags           []string
	Metadata       json.RawMessage
	Status         Status
	RetryCount     int
	LastError      string
	HasManualCaptions bool
	HasASR            bool
	SegmentCount      int
	EmbeddedCount     int
	CreatedAt      time.Time
	LastUpdated    time.Time
	ProcessedAt    *time.Time
}

// Segment is a contiguous timed utterance of a single speaker within one
// Source.
type Segment struct {
	ID                int64
	SourceID          int64
	ExternalID        string
	StartSec          float64
	EndSec            float64
	Text              string
	SpeakerLabel      SpeakerLabel
	SpeakerConfidence *float64
	AvgLogprob        float64
	CompressionRatio  float64
	NoSpeechProb      float64
	TemperatureUsed   float64
	ReASR             bool
	IsOverlap         bool
	NeedsRefinement   bool
	Embedding         []float32
	Metadata          json.RawMessage
	CreatedAt         time.Time
}

// VoiceProfile is a persisted fingerprint of the target speaker, created by
// an external enrollment tool and read-only to the pipeline.
type VoiceProfile struct {
	Name      string
	Centroid  []float32
	Threshold float64
}

// APICacheEntry is a read-through cache row for quota-limited source-lister
// backends.
type APICacheEntry struct {
	CacheKey  string
	ETag      string
	Data      json.RawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
}
