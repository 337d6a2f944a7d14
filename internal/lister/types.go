package lister

import "time"

// SourceMeta is one candidate item as reported by a lister backend. Enriched
// is false when only the external id could be recovered (the backend's
// metadata call failed for this item but enumeration as a whole succeeded).
type SourceMeta struct {
	ExternalID    string
	Title         string
	URL           string
	ChannelName   string
	ChannelURL    string
	PublishedAt   time.Time
	DurationS     int
	ViewCount     int64
	LikeCount     int64
	CommentCount  int64
	Description   string
	ThumbnailURL  string
	Tags          []string
	IsLive        bool
	IsUpcoming    bool
	IsMembersOnly bool
	Enriched      bool
}

// Filters are the configuration-enumerated rules a lister applies to the
// raw backend stream before handing items to the caller.
type Filters struct {
	SkipShorts      bool
	MaxDurationS    int
	NewestFirst     bool
	SkipLive        bool
	SkipUpcoming    bool
	SkipMembersOnly bool
}

// shortsThresholdSeconds is the duration below which an item is a "short"
// under SkipShorts.
const shortsThresholdSeconds = 120

// Accept reports whether meta passes every configured filter.
func (f Filters) Accept(meta SourceMeta) (bool, string) {
	if f.SkipShorts && meta.DurationS > 0 && meta.DurationS < shortsThresholdSeconds {
		return false, "short"
	}
	if f.MaxDurationS > 0 && meta.DurationS > f.MaxDurationS {
		return false, "exceeds_max_duration"
	}
	if f.SkipLive && meta.IsLive {
		return false, "live"
	}
	if f.SkipUpcoming && meta.IsUpcoming {
		return false, "upcoming"
	}
	if f.SkipMembersOnly && meta.IsMembersOnly {
		return false, "members_only"
	}
	return true, ""
}
