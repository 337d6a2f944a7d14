package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"corpusd/internal/audio"
	"corpusd/internal/captions"
	"corpusd/internal/store"
)

type fakeCaptionExecutor struct {
	listOutput []byte
	err        error
}

func (f fakeCaptionExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	return f.listOutput, f.err
}

type fakeAudioExecutor struct {
	err    error
	stderr string
}

func (f fakeAudioExecutor) Run(ctx context.Context, args []string) (string, string, error) {
	return "", f.stderr, f.err
}

func writeTrackFile(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "track.srt")
	var content string
	for i, line := range lines {
		content += fmt.Sprintf("%d\n00:00:0%d,000 --> 00:00:0%d,000\n%s\n\n", i+1, i+1, i+2, line)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIOStagePrefersManualCaptionsOverAudio(t *testing.T) {
	dir := t.TempDir()
	trackPath := writeTrackFile(t, dir, []string{"hello world"})
	listing, _ := json.Marshal([]captions.Track{{Language: "en", Format: "srt", Path: trackPath}})

	s := &ioStage{
		Fetcher:  &captions.Fetcher{Binary: "yt-dlp", Exec: fakeCaptionExecutor{listOutput: listing}},
		Acquirer: &audio.Acquirer{Binary: "yt-dlp", Exec: fakeAudioExecutor{err: errors.New("should not be called")}},
	}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}}
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !item.UsedManualCaptions {
		t.Fatal("expected manual captions to be used")
	}
	if len(item.ManualCaptions) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(item.ManualCaptions))
	}
}

func TestIOStageFallsBackToAudioWhenNoCaptions(t *testing.T) {
	dir := t.TempDir()
	emptyListing, _ := json.Marshal([]captions.Track{})

	s := &ioStage{
		Fetcher:  &captions.Fetcher{Binary: "yt-dlp", Exec: fakeCaptionExecutor{listOutput: emptyListing}},
		Acquirer: audio.NewAcquirer("yt-dlp", "ffprobe", dir, true),
	}
	s.Acquirer.Exec = fakeAudioExecutor{err: errors.New("download failed: no network")}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}}
	err := s.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected transient error from failed acquisition")
	}
}

func TestIOStageFlagsInaccessibleContentAsSkip(t *testing.T) {
	dir := t.TempDir()
	emptyListing, _ := json.Marshal([]captions.Track{})

	s := &ioStage{
		Fetcher:  &captions.Fetcher{Binary: "yt-dlp", Exec: fakeCaptionExecutor{listOutput: emptyListing}},
		Acquirer: audio.NewAcquirer("yt-dlp", "ffprobe", dir, true),
	}
	s.Acquirer.Exec = fakeAudioExecutor{err: errors.New("exit 1"), stderr: "ERROR: Private video"}

	item := &store.WorkItem{Source: store.Source{ExternalID: "abc"}}
	err := s.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error for inaccessible content")
	}
}

func TestIOStagePrepareRejectsMissingExternalID(t *testing.T) {
	s := &ioStage{}
	err := s.Prepare(context.Background(), &store.WorkItem{})
	if err == nil {
		t.Fatal("expected validation error for missing external id")
	}
}

func TestIOStageHealthCheckReflectsConfiguration(t *testing.T) {
	s := &ioStage{}
	if s.HealthCheck(context.Background()).Ready {
		t.Fatal("expected unhealthy without fetcher/acquirer")
	}
	s.Fetcher = &captions.Fetcher{}
	s.Acquirer = &audio.Acquirer{}
	if !s.HealthCheck(context.Background()).Ready {
		t.Fatal("expected healthy once configured")
	}
}
