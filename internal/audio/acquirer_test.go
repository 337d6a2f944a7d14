package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"corpusd/internal/audio"
)

type fakeExecutor struct {
	stdout, stderr string
	err            error
	writeFile      string // path to touch with fake content when Run succeeds
	fileSize       int
}

func (f *fakeExecutor) Run(_ context.Context, args []string) (string, string, error) {
	if f.err == nil && f.writeFile != "" {
		content := make([]byte, f.fileSize)
		_ = os.WriteFile(f.writeFile, content, 0o644)
	}
	return f.stdout, f.stderr, f.err
}

func TestAcquireDetectsInaccessibleContent(t *testing.T) {
	dir := t.TempDir()
	a := audio.NewAcquirer("fake-dl", "fake-ffprobe", dir, true)
	a.Exec = &fakeExecutor{err: errExit{}, stderr: "ERROR: Private video. Sign in if you've been invited."}

	_, reason, err := a.Acquire(context.Background(), "abc123", audio.Constraints{})
	if err != nil {
		t.Fatalf("expected no error for inaccessible content, got %v", err)
	}
	if reason != audio.SkipInaccessible {
		t.Fatalf("expected SkipInaccessible, got %q", reason)
	}
}

type errExit struct{}

func (errExit) Error() string { return "exit status 1" }

func TestReleaseIsNoOpWhenRetentionEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := audio.NewAcquirer("fake-dl", "fake-ffprobe", dir, true)
	if err := a.Release(path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("expected file to survive Release under retention policy")
	}
}

func TestReleaseDeletesWhenRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drop.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := audio.NewAcquirer("fake-dl", "fake-ffprobe", dir, false)
	if err := a.Release(path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed under production retention policy")
	}
}
