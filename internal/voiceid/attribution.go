package voiceid

import "corpusd/internal/store"

// DefaultMargin is the gap below threshold past which a turn is confidently
// not the target speaker.
const DefaultMargin = 0.05

// MonologueConfidence is the confidence ceiling applied when the monologue
// assumption skips diarization entirely.
const MonologueConfidence = 0.90

// OverlapCoverageThreshold is the fraction of a segment's duration the
// dominant turn must exceed, when more than one turn overlaps the segment,
// before the segment is flagged is_overlap. The other turns' coverage is not
// measured.
const OverlapCoverageThreshold = 0.2

// Attribute labels each segment by its dominant overlapping speaker turn,
// per the attribution policy: similarity at or above threshold is the
// target speaker, safely below threshold minus margin is a guest, and the
// ambiguous band between is unknown.
func Attribute(segments []store.Segment, turns []SpeakerTurn, threshold, margin float64) []store.Segment {
	if margin <= 0 {
		margin = DefaultMargin
	}

	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		turn, coverage, multi := dominantTurn(turns, seg.StartSec, seg.EndSec)
		labeled := seg

		switch {
		case coverage == 0:
			labeled.SpeakerLabel = store.SpeakerUnknown
			labeled.SpeakerConfidence = floatPtr(0)
		case turn.Similarity >= threshold:
			labeled.SpeakerLabel = store.SpeakerChaffee
			labeled.SpeakerConfidence = floatPtr(turn.Similarity)
		case turn.Similarity < threshold-margin:
			labeled.SpeakerLabel = store.SpeakerGuest
			labeled.SpeakerConfidence = floatPtr(1 - turn.Similarity)
		default:
			labeled.SpeakerLabel = store.SpeakerUnknown
			labeled.SpeakerConfidence = floatPtr(distanceConfidence(turn.Similarity, threshold, margin))
		}

		labeled.IsOverlap = multi && coverage > OverlapCoverageThreshold
		out[i] = labeled
	}
	return out
}

// ApplyMonologueAssumption tags every segment CHAFFEE at the fixed
// confidence ceiling, skipping diarization entirely.
func ApplyMonologueAssumption(segments []store.Segment) []store.Segment {
	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		seg.SpeakerLabel = store.SpeakerChaffee
		seg.SpeakerConfidence = floatPtr(MonologueConfidence)
		out[i] = seg
	}
	return out
}

func distanceConfidence(similarity, threshold, margin float64) float64 {
	d := threshold - similarity
	if d < 0 {
		d = -d
	}
	confidence := 1 - d/margin
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func floatPtr(v float64) *float64 { return &v }
