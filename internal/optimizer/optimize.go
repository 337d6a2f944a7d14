package optimizer

import (
	"strings"

	"corpusd/internal/store"
)

// Optimize normalizes, merges, and splits segments into retrieval-friendly
// spans. It is total: any input with at least one non-blank segment yields
// a non-empty, time-ordered output whose spans never overlap within a
// speaker; input whose text is all blank yields nil.
func Optimize(segments []store.Segment, params Params) []store.Segment {
	params = params.WithDefaults()
	if len(segments) == 0 {
		return nil
	}

	normalized := make([]store.Segment, 0, len(segments))
	for _, seg := range segments {
		text := normalizeText(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text
		normalized = append(normalized, seg)
	}
	if len(normalized) == 0 {
		return nil
	}

	merged := merge(normalized, params)

	out := make([]store.Segment, 0, len(merged))
	for _, seg := range merged {
		out = append(out, split(seg, params)...)
	}
	return out
}

func merge(segments []store.Segment, params Params) []store.Segment {
	out := make([]store.Segment, 0, len(segments))
	cur := segments[0]

	for _, next := range segments[1:] {
		if shouldMerge(cur, next, params) {
			cur = mergePair(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

func shouldMerge(a, b store.Segment, params Params) bool {
	if a.SpeakerLabel != b.SpeakerLabel {
		return false
	}
	gap := b.StartSec - a.EndSec
	if gap < 0 || gap > params.MaxGapSeconds {
		return false
	}
	mergedDuration := b.EndSec - a.StartSec
	if mergedDuration > params.MaxMergeDurationS {
		return false
	}

	if len(a.Text) < 30 || len(b.Text) < 30 {
		return true
	}

	oneBelowMin := len(a.Text) < params.TargetMinChars || len(b.Text) < params.TargetMinChars
	combinedBelowMax := len(a.Text)+len(b.Text)+1 < params.TargetMaxChars
	return oneBelowMin && combinedBelowMax
}

func mergePair(a, b store.Segment) store.Segment {
	durA := a.EndSec - a.StartSec
	durB := b.EndSec - b.StartSec
	total := durA + durB

	merged := a
	merged.EndSec = b.EndSec
	merged.Text = strings.TrimSpace(a.Text + " " + b.Text)

	merged.AvgLogprob = weightedAvg(a.AvgLogprob, durA, b.AvgLogprob, durB, total)
	merged.CompressionRatio = weightedAvg(a.CompressionRatio, durA, b.CompressionRatio, durB, total)
	merged.NoSpeechProb = weightedAvg(a.NoSpeechProb, durA, b.NoSpeechProb, durB, total)
	merged.TemperatureUsed = weightedAvg(a.TemperatureUsed, durA, b.TemperatureUsed, durB, total)

	merged.ReASR = a.ReASR || b.ReASR
	merged.IsOverlap = a.IsOverlap || b.IsOverlap
	merged.NeedsRefinement = a.NeedsRefinement || b.NeedsRefinement

	merged.SpeakerConfidence = maxConfidence(a.SpeakerConfidence, b.SpeakerConfidence)
	return merged
}

func weightedAvg(va, da, vb, db, total float64) float64 {
	if total <= 0 {
		return (va + vb) / 2
	}
	return (va*da + vb*db) / total
}

func maxConfidence(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

// split breaks a segment at sentence boundaries when it exceeds
// 1.5x target_max_chars, apportioning time proportionally to character count.
func split(seg store.Segment, params Params) []store.Segment {
	threshold := int(1.5 * float64(params.TargetMaxChars))
	if len(seg.Text) <= threshold {
		return []store.Segment{seg}
	}

	sentences := splitSentences(seg.Text)
	slices := packSentences(sentences, params.TargetMaxChars)
	if len(slices) <= 1 {
		return []store.Segment{seg}
	}

	totalChars := 0
	for _, s := range slices {
		totalChars += len(s)
	}
	if totalChars == 0 {
		return []store.Segment{seg}
	}

	duration := seg.EndSec - seg.StartSec
	out := make([]store.Segment, 0, len(slices))
	cursor := seg.StartSec
	for i, s := range slices {
		share := duration * float64(len(s)) / float64(totalChars)
		end := cursor + share
		if i == len(slices)-1 {
			end = seg.EndSec
		}

		piece := seg
		piece.Text = strings.TrimSpace(s)
		piece.StartSec = cursor
		piece.EndSec = end
		out = append(out, piece)
		cursor = end
	}
	return out
}

// packSentences greedily accumulates sentences into slices no longer than
// maxChars; a single sentence longer than maxChars becomes a slice of its
// own.
func packSentences(sentences []string, maxChars int) []string {
	var slices []string
	var cur strings.Builder

	for _, sentence := range sentences {
		if cur.Len() > 0 && cur.Len()+len(sentence) > maxChars {
			slices = append(slices, cur.String())
			cur.Reset()
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		slices = append(slices, cur.String())
	}
	return slices
}
