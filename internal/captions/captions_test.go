package captions_test

import (
	"testing"

	"corpusd/internal/captions"
	"corpusd/internal/store"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,500
Hello there.

2
00:00:04,000 --> 00:00:06,000
[music]

3
00:00:06,500 --> 00:00:09,000
Welcome back to the show.
`

const sampleVTT = `WEBVTT

00:00:01.000 --> 00:00:03.500
Hello there.

00:00:04.200 --> 00:00:06.000
Welcome back.
`

func TestParseSRTFiltersNonVerbalBlocksAfterNormalize(t *testing.T) {
	cues, err := captions.ParseSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("expected 3 raw cues, got %d", len(cues))
	}

	normalized := captions.Normalize(cues)
	for _, c := range normalized {
		if c.Text == "[music]" {
			t.Fatal("expected non-verbal marker to be filtered")
		}
	}
}

func TestParseVTTMergesAdjacentCues(t *testing.T) {
	cues, err := captions.ParseVTT([]byte(sampleVTT))
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	normalized := captions.Normalize(cues)
	if len(normalized) != 1 {
		t.Fatalf("expected adjacent cues within 1s gap to merge, got %d", len(normalized))
	}
	if normalized[0].Text != "Hello there. Welcome back." {
		t.Fatalf("unexpected merged text: %q", normalized[0].Text)
	}
}

func TestNormalizeDropsTinyCues(t *testing.T) {
	cues := []store.CaptionCue{
		{StartSec: 0, EndSec: 1, Text: "ok"},
		{StartSec: 5, EndSec: 6, Text: "a real sentence here"},
	}
	normalized := captions.Normalize(cues)
	if len(normalized) != 1 {
		t.Fatalf("expected the 2-char cue to be dropped, got %d cues", len(normalized))
	}
	if normalized[0].Text != "a real sentence here" {
		t.Fatalf("unexpected surviving cue: %q", normalized[0].Text)
	}
}
