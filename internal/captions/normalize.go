package captions

import (
	"regexp"
	"strings"

	"corpusd/internal/store"
)

const mergeGapSeconds = 1.0

var nonVerbalMarker = regexp.MustCompile(`(?i)^\[(music|applause|laughter|silence)\]$`)

// Normalize filters non-verbal markers and too-short cues, then merges
// adjacent cues separated by at most mergeGapSeconds.
func Normalize(cues []store.CaptionCue) []store.CaptionCue {
	filtered := make([]store.CaptionCue, 0, len(cues))
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if text == "" || len(text) <= 2 {
			continue
		}
		if nonVerbalMarker.MatchString(text) {
			continue
		}
		c.Text = text
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return nil
	}

	merged := make([]store.CaptionCue, 0, len(filtered))
	cur := filtered[0]
	for _, next := range filtered[1:] {
		if next.StartSec-cur.EndSec <= mergeGapSeconds {
			cur.EndSec = next.EndSec
			cur.Text = strings.TrimSpace(cur.Text + " " + next.Text)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}
