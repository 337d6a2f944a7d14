package voiceid

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"corpusd/internal/voiceprofile"
)

// Diarizer partitions an audio file into speaker turns and scores each turn
// against the active voice profile's centroid.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, profile voiceprofile.Profile) ([]SpeakerTurn, error)
}

// Executor abstracts command execution so tests can substitute a fake
// without invoking a real subprocess.
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

// SubprocessDiarizer invokes an external diarization tool and parses its
// JSON turn list, keeping the diarization/embedding model itself out of
// process per the narrow subprocess-capability boundary.
type SubprocessDiarizer struct {
	Binary string
	Exec   Executor
}

// NewSubprocessDiarizer constructs a diarizer that shells out to binary.
func NewSubprocessDiarizer(binary string) *SubprocessDiarizer {
	return &SubprocessDiarizer{Binary: binary, Exec: commandExecutor{}}
}

type diarizeOutputTurn struct {
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Speaker   string    `json:"speaker"`
	Embedding []float32 `json:"embedding"`
}

// Diarize shells out to d.Binary with the audio path, expecting a JSON
// array of turns on stdout; each turn's embedding is scored against the
// profile centroid here, not by the tool.
func (d *SubprocessDiarizer) Diarize(ctx context.Context, audioPath string, profile voiceprofile.Profile) ([]SpeakerTurn, error) {
	if d.Exec == nil {
		d.Exec = commandExecutor{}
	}
	args := []string{"--audio", audioPath, "--format", "json"}
	output, err := d.Exec.Run(ctx, d.Binary, args)
	if err != nil {
		return nil, fmt.Errorf("voiceid: diarize: %w", err)
	}

	var raw []diarizeOutputTurn
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("voiceid: parse diarizer output: %w", err)
	}

	turns := make([]SpeakerTurn, 0, len(raw))
	for _, t := range raw {
		similarity := voiceprofile.CosineSimilarity(t.Embedding, profile.Centroid)
		turns = append(turns, SpeakerTurn{
			Start:      t.Start,
			End:        t.End,
			SpeakerTag: t.Speaker,
			Embedding:  t.Embedding,
			Similarity: similarity,
		})
	}
	return turns, nil
}
