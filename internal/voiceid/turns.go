package voiceid

// SpeakerTurn is a contiguous span attributed to one diarized speaker,
// carrying the embedding and similarity computed against the active voice
// profile's centroid.
type SpeakerTurn struct {
	Start      float64
	End        float64
	SpeakerTag string
	Embedding  []float32
	Similarity float64
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := max(aStart, bStart)
	end := min(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}

// dominantTurn returns the turn with the greatest time-overlap with
// [start, end], plus the coverage ratio of that overlap relative to the
// segment's own duration, and whether more than one turn overlaps it.
func dominantTurn(turns []SpeakerTurn, start, end float64) (SpeakerTurn, float64, bool) {
	duration := end - start
	var best SpeakerTurn
	bestOverlap := -1.0
	overlapping := 0

	for _, t := range turns {
		o := overlap(start, end, t.Start, t.End)
		if o <= 0 {
			continue
		}
		overlapping++
		if o > bestOverlap {
			bestOverlap = o
			best = t
		}
	}

	if overlapping == 0 || duration <= 0 {
		return SpeakerTurn{}, 0, false
	}
	return best, bestOverlap / duration, overlapping > 1
}
