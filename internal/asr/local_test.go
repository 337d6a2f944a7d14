package asr_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"corpusd/internal/asr"
)

type fakeExecutor struct {
	calls    int
	outputs  []string // JSON payloads indexed by call count (ffmpeg calls included); later calls reuse the last one
	ffmpegOK bool
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.calls++
	if strings.Contains(binary, "ffmpeg") {
		// Touch the destination path (last arg) so os.Remove in the caller succeeds.
		dest := args[len(args)-1]
		_ = os.WriteFile(dest, []byte("fake-audio"), 0o644)
		return []byte("ok"), nil
	}

	var outPath string
	for i, a := range args {
		if a == "--output_file" && i+1 < len(args) {
			outPath = args[i+1]
		}
	}
	idx := f.calls - 1
	if idx < 0 || idx >= len(f.outputs) {
		idx = len(f.outputs) - 1
	}
	if err := os.WriteFile(outPath, []byte(f.outputs[idx]), 0o644); err != nil {
		return nil, err
	}
	return []byte("ok"), nil
}

func TestLocalRecognizerRefinesLowQualitySegments(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(audioPath, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	fastPass := mustJSON(t, map[string]any{
		"segments": []map[string]any{
			{"start": 0.0, "end": 2.0, "text": "good segment", "avg_logprob": -0.2, "compression_ratio": 1.5, "no_speech_prob": 0.05},
			{"start": 2.0, "end": 4.0, "text": "bad segment", "avg_logprob": -2.0, "compression_ratio": 1.5, "no_speech_prob": 0.05},
		},
	})
	refinePass := mustJSON(t, map[string]any{
		"segments": []map[string]any{
			{"start": 0.0, "end": 2.0, "text": "refined segment", "avg_logprob": -0.1, "compression_ratio": 1.2, "no_speech_prob": 0.01},
		},
	})

	exec := &fakeExecutor{outputs: []string{fastPass, refinePass}}
	rec := &asr.LocalRecognizer{
		Binary:       "fake-whisper",
		FFmpegBinary: "fake-ffmpeg",
		PrimaryModel: "distil-large-v3",
		RefineModel:  "large-v3",
		Thresholds:   asr.QualityThresholds{AvgLogprob: -1.0, Compression: 2.4, NoSpeech: 0.6},
		Exec:         exec,
		WorkDir:      dir,
	}

	segments, err := rec.Transcribe(context.Background(), audioPath, asr.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "good segment" || segments[0].ReASR {
		t.Fatalf("expected first segment unchanged, got %#v", segments[0])
	}
	if segments[1].Text != "refined segment" || !segments[1].ReASR {
		t.Fatalf("expected second segment refined, got %#v", segments[1])
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
