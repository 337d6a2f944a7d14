package optimizer_test

import (
	"strings"
	"testing"

	"corpusd/internal/optimizer"
	"corpusd/internal/store"
)

func seg(start, end float64, text string, label store.SpeakerLabel) store.Segment {
	return store.Segment{StartSec: start, EndSec: end, Text: text, SpeakerLabel: label}
}

func TestOptimizeMergesShortAdjacentSegments(t *testing.T) {
	in := []store.Segment{
		seg(0, 1, "Hi", store.SpeakerChaffee),
		seg(1.5, 3, "there", store.SpeakerChaffee),
	}
	out := optimizer.Optimize(in, optimizer.Params{})
	if len(out) != 1 {
		t.Fatalf("expected merge into 1 segment, got %d: %#v", len(out), out)
	}
	if out[0].StartSec != 0 || out[0].EndSec != 3 {
		t.Fatalf("unexpected merged span: %#v", out[0])
	}
}

func TestOptimizeDoesNotMergeDifferentSpeakers(t *testing.T) {
	in := []store.Segment{
		seg(0, 1, "Hi", store.SpeakerChaffee),
		seg(1.2, 2, "there", store.SpeakerGuest),
	}
	out := optimizer.Optimize(in, optimizer.Params{})
	if len(out) != 2 {
		t.Fatalf("expected 2 segments across speakers, got %d", len(out))
	}
}

func TestOptimizeDoesNotMergeAcrossLargeGap(t *testing.T) {
	in := []store.Segment{
		seg(0, 1, "Hi", store.SpeakerChaffee),
		seg(10, 11, "there", store.SpeakerChaffee),
	}
	out := optimizer.Optimize(in, optimizer.Params{MaxGapSeconds: 2})
	if len(out) != 2 {
		t.Fatalf("expected gap to block merge, got %d segments", len(out))
	}
}

func TestOptimizeSplitsOverlongSegment(t *testing.T) {
	sentence := "This is a reasonably long sentence about a topic. "
	longText := strings.Repeat(sentence, 10)
	in := []store.Segment{seg(0, 100, longText, store.SpeakerChaffee)}

	out := optimizer.Optimize(in, optimizer.Params{TargetMaxChars: 100})
	if len(out) < 2 {
		t.Fatalf("expected split into multiple segments, got %d", len(out))
	}
	for i, s := range out {
		if s.StartSec < 0 || s.EndSec <= s.StartSec {
			t.Fatalf("segment %d has invalid time range: %#v", i, s)
		}
	}
	if out[0].StartSec != 0 {
		t.Fatalf("expected first slice to start at 0, got %f", out[0].StartSec)
	}
	if out[len(out)-1].EndSec != 100 {
		t.Fatalf("expected last slice to end at source end, got %f", out[len(out)-1].EndSec)
	}
}

func TestOptimizeNormalizesAndDropsEmptyText(t *testing.T) {
	in := []store.Segment{
		seg(0, 1, "   ", store.SpeakerChaffee),
		seg(1, 5, "  hello   world  ", store.SpeakerGuest),
	}
	out := optimizer.Optimize(in, optimizer.Params{})
	if len(out) != 1 {
		t.Fatalf("expected blank segment dropped, got %d", len(out))
	}
	if out[0].Text != "hello world" {
		t.Fatalf("unexpected normalized text: %q", out[0].Text)
	}
}

func TestOptimizeIsTotalForNonEmptyInput(t *testing.T) {
	in := []store.Segment{seg(0, 2, "a", store.SpeakerChaffee)}
	out := optimizer.Optimize(in, optimizer.Params{})
	if len(out) == 0 {
		t.Fatal("expected non-empty output for non-empty input")
	}
}

func TestOptimizeEmptyInputReturnsEmpty(t *testing.T) {
	if out := optimizer.Optimize(nil, optimizer.Params{}); out != nil {
		t.Fatalf("expected nil output for nil input, got %#v", out)
	}
}
