package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"corpusd/internal/store"
)

// Track describes one caption track offered by the acquisition backend
// before it is fetched and parsed.
type Track struct {
	Language      string `json:"language"`
	AutoGenerated bool   `json:"auto_generated"`
	Format        string `json:"format"` // "srt" or "vtt"
	Path          string `json:"path"`
}

// Executor runs the external caption-listing/download command.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Fetcher retrieves and normalizes an existing caption track for a Source.
type Fetcher struct {
	Binary              string
	Exec                Executor
	MedicalGradeDefault bool
}

// NewFetcher constructs a Fetcher backed by binary, a CLI media tool's
// subtitle-listing mode.
func NewFetcher(binary string, medicalGrade bool) *Fetcher {
	return &Fetcher{Binary: binary, Exec: commandExecutor{}, MedicalGradeDefault: medicalGrade}
}

// Fetch lists available tracks for externalID, selects the best match for
// languagePrefs under the medical-grade policy, and returns normalized
// cues. found is false when no qualifying track exists.
func (f *Fetcher) Fetch(ctx context.Context, externalID string, languagePrefs []string) (cues []store.CaptionCue, found bool, err error) {
	if f.Exec == nil {
		f.Exec = commandExecutor{}
	}

	args := []string{"--list-subs", "--external-id", externalID}
	output, err := f.Exec.Run(ctx, f.Binary, args)
	if err != nil {
		return nil, false, fmt.Errorf("captions: list tracks: %w", err)
	}

	var tracks []Track
	if err := json.Unmarshal(output, &tracks); err != nil {
		return nil, false, fmt.Errorf("captions: parse track list: %w", err)
	}

	track, ok := selectTrack(tracks, languagePrefs, f.MedicalGradeDefault)
	if !ok {
		return nil, false, nil
	}

	data, err := os.ReadFile(track.Path)
	if err != nil {
		return nil, false, fmt.Errorf("captions: read track file: %w", err)
	}

	var raw []store.CaptionCue
	switch strings.ToLower(track.Format) {
	case "vtt":
		raw, err = ParseVTT(data)
	default:
		raw, err = ParseSRT(data)
	}
	if err != nil {
		return nil, false, fmt.Errorf("captions: parse track: %w", err)
	}

	return Normalize(raw), true, nil
}

// selectTrack picks the first track matching languagePrefs in order,
// excluding auto-generated tracks when medicalGrade is on. Falls back to
// any qualifying track if no language preference matches.
func selectTrack(tracks []Track, languagePrefs []string, medicalGrade bool) (Track, bool) {
	qualifies := func(t Track) bool {
		return !medicalGrade || !t.AutoGenerated
	}

	for _, lang := range languagePrefs {
		for _, t := range tracks {
			if qualifies(t) && strings.EqualFold(t.Language, lang) {
				return t, true
			}
		}
	}
	for _, t := range tracks {
		if qualifies(t) {
			return t, true
		}
	}
	return Track{}, false
}
