package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"corpusd/internal/asr"
	"corpusd/internal/optimizer"
	"corpusd/internal/store"
	"corpusd/internal/voiceid"
	"corpusd/internal/voiceprofile"
)

type fakeRecognizer struct {
	segments []store.Segment
	err      error
}

func (f fakeRecognizer) Transcribe(_ context.Context, _ string, _ asr.Options) ([]store.Segment, error) {
	return f.segments, f.err
}

type fakeDiarizer struct {
	turns []voiceid.SpeakerTurn
	err   error
}

func (f fakeDiarizer) Diarize(_ context.Context, _ string, _ voiceprofile.Profile) ([]voiceid.SpeakerTurn, error) {
	return f.turns, f.err
}

type fakeEmbedder struct {
	dims int
	err  error
}

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dims }

func writeVoiceProfile(t *testing.T, dir, name string) *voiceprofile.Store {
	t.Helper()
	data, _ := json.Marshal(voiceprofile.Profile{
		Name:      name,
		Centroid:  []float32{1, 0, 0},
		Threshold: 0.8,
	})
	if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := voiceprofile.Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func baseASRStage() *asrStage {
	return &asrStage{
		Recognizer:          fakeRecognizer{segments: []store.Segment{{Text: "hello", StartSec: 0, EndSec: 1}}},
		OptimizerParams:     optimizer.Params{},
		Embedder:            fakeEmbedder{dims: 4},
		BatchEmbedSize:      10,
		EmbedTargetOnly:     false,
		RetryMax:            3,
		MonologueAssumption: true,
	}
}

func TestASRStageMonologueAssumptionLabelsChaffeeWithoutDiarizer(t *testing.T) {
	s := baseASRStage()
	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav"}

	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(item.OptimizedSegments) == 0 {
		t.Fatal("expected optimized segments")
	}
	for _, seg := range item.OptimizedSegments {
		if seg.SpeakerLabel != store.SpeakerChaffee {
			t.Fatalf("expected CHAFFEE label, got %q", seg.SpeakerLabel)
		}
	}
}

func TestASRStageCaptionFastPathUsesDefaultingNotDiarization(t *testing.T) {
	s := baseASRStage()
	s.Diarizer = fakeDiarizer{err: errors.New("should not be called")}
	item := &store.WorkItem{
		Source:             store.Source{ExternalID: "abc"},
		UsedManualCaptions: true,
		ManualCaptions:     []store.CaptionCue{{StartSec: 0, EndSec: 1, Text: "hi"}},
	}

	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(item.OptimizedSegments) == 0 {
		t.Fatal("expected optimized segments")
	}
}

func TestASRStageDiarizerFailureDegradesToUnknown(t *testing.T) {
	dir := t.TempDir()
	profiles := writeVoiceProfile(t, dir, "default")

	s := baseASRStage()
	s.MonologueAssumption = false
	s.VoiceProfiles = profiles
	s.ProfileName = "default"
	s.Diarizer = fakeDiarizer{err: errors.New("diarizer crashed")}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav"}
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("expected non-fatal degradation, got error: %v", err)
	}
	for _, seg := range item.OptimizedSegments {
		if seg.SpeakerLabel != store.SpeakerUnknown {
			t.Fatalf("expected UNKNOWN after diarizer failure, got %q", seg.SpeakerLabel)
		}
	}
}

func TestASRStageMissingProfileDegradesToUnknown(t *testing.T) {
	s := baseASRStage()
	s.MonologueAssumption = false
	s.VoiceProfiles = nil
	s.Diarizer = fakeDiarizer{}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav"}
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, seg := range item.OptimizedSegments {
		if seg.SpeakerLabel != store.SpeakerUnknown {
			t.Fatalf("expected UNKNOWN without profiles configured, got %q", seg.SpeakerLabel)
		}
	}
}

func TestASRStageTranscriptionFailurePropagates(t *testing.T) {
	s := baseASRStage()
	s.Recognizer = fakeRecognizer{err: errors.New("model crashed")}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav"}
	if err := s.Execute(context.Background(), item); err == nil {
		t.Fatal("expected transcription error to propagate")
	}
}

func TestASRStageEmbeddingFailureWithinRetryBudgetIsRetryable(t *testing.T) {
	s := baseASRStage()
	s.Embedder = fakeEmbedder{err: errors.New("rate limited")}
	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav", Attempt: 0}

	err := s.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected retryable embedding error")
	}
}

func TestASRStageEmbeddingFailureAtRetryBudgetDegradesToUnvectoredSegments(t *testing.T) {
	s := baseASRStage()
	s.Embedder = fakeEmbedder{err: errors.New("rate limited")}
	s.RetryMax = 2
	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav", Attempt: 2}

	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("expected degrade-not-fail once retry budget is exhausted, got: %v", err)
	}
	if len(item.OptimizedSegments) == 0 {
		t.Fatal("expected segments to be stored despite missing embeddings")
	}
	for _, seg := range item.OptimizedSegments {
		if len(seg.Embedding) != 0 {
			t.Fatal("expected no embeddings after degrade path")
		}
	}
	if !item.EmbeddingDegraded {
		t.Fatal("expected EmbeddingDegraded to be set so the DB stage marks the source error, not done")
	}
}

type statusRecorder struct {
	*store.MemoryStore
	statuses []store.Status
}

func (r *statusRecorder) UpdateStatus(ctx context.Context, externalID string, status store.Status, fields store.StatusUpdate) error {
	r.statuses = append(r.statuses, status)
	return r.MemoryStore.UpdateStatus(ctx, externalID, status, fields)
}

func TestASRStageRecordsIntermediateStatuses(t *testing.T) {
	recorder := &statusRecorder{MemoryStore: store.NewMemoryStore()}
	if _, err := recorder.UpsertSource(context.Background(), store.Source{ExternalID: "abc"}); err != nil {
		t.Fatal(err)
	}

	s := baseASRStage()
	s.Store = recorder
	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}, AudioPath: "/tmp/a.wav"}
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []store.Status{store.StatusDiarized, store.StatusOptimized, store.StatusEmbedded}
	if len(recorder.statuses) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, recorder.statuses)
	}
	for i, status := range want {
		if recorder.statuses[i] != status {
			t.Fatalf("expected transitions %v, got %v", want, recorder.statuses)
		}
	}
	if item.Source.Status != store.StatusEmbedded {
		t.Fatalf("expected item to carry the embedded status forward, got %q", item.Source.Status)
	}
}

func TestASRStageCaptionFastPathSkipsDiarizedStatus(t *testing.T) {
	recorder := &statusRecorder{MemoryStore: store.NewMemoryStore()}
	if _, err := recorder.UpsertSource(context.Background(), store.Source{ExternalID: "abc"}); err != nil {
		t.Fatal(err)
	}

	s := baseASRStage()
	s.Store = recorder
	item := &store.WorkItem{
		Source:             store.Source{ExternalID: "abc"},
		UsedManualCaptions: true,
		ManualCaptions:     []store.CaptionCue{{StartSec: 0, EndSec: 1, Text: "hi"}},
	}
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, status := range recorder.statuses {
		if status == store.StatusDiarized {
			t.Fatal("caption fast path must not pass through diarized")
		}
	}
}

func TestASRStagePrepareRejectsMissingAudioAndCaptions(t *testing.T) {
	s := baseASRStage()
	err := s.Prepare(context.Background(), &store.WorkItem{Source: store.Source{ExternalID: "abc"}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestASRStageHealthCheckRequiresRecognizerAndEmbedder(t *testing.T) {
	s := &asrStage{}
	if s.HealthCheck(context.Background()).Ready {
		t.Fatal("expected unhealthy without recognizer/embedder")
	}
}
