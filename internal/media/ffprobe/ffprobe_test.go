package ffprobe

import (
	"math"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", Channels: 1, SampleRate: "16000"},
			{CodecType: "audio", Channels: 2, SampleRate: "44100"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
		},
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	stream, ok := result.PrimaryAudioStream()
	if !ok {
		t.Fatal("expected a primary audio stream")
	}
	if stream.Channels != 1 || stream.SampleRate != "16000" {
		t.Fatalf("expected the first audio stream to be returned, got %+v", stream)
	}
	if !result.IsMonoAt16kHz() {
		t.Fatal("expected IsMonoAt16kHz to match the primary audio stream")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestIsMonoAt16kHzFalseWithoutAudioStream(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "video"}}}
	if result.IsMonoAt16kHz() {
		t.Fatal("expected false when there is no audio stream")
	}
}

func TestIsMonoAt16kHzFalseForStereoOrOtherRates(t *testing.T) {
	stereo := Result{Streams: []Stream{{CodecType: "audio", Channels: 2, SampleRate: "16000"}}}
	if stereo.IsMonoAt16kHz() {
		t.Fatal("expected false for a stereo stream")
	}
	otherRate := Result{Streams: []Stream{{CodecType: "audio", Channels: 1, SampleRate: "44100"}}}
	if otherRate.IsMonoAt16kHz() {
		t.Fatal("expected false for a non-16kHz sample rate")
	}
}
