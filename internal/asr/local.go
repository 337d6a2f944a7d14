package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"corpusd/internal/store"
)

// Executor runs an external command and returns its combined output,
// abstracted behind an interface so tests can stub it without shelling out.
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

// LocalRecognizer runs a fast first pass with PrimaryModel, then
// re-transcribes any segment whose quality metrics cross Thresholds with
// RefineModel, marking the replacement re_asr. Each worker owns its own
// LocalRecognizer; model state is never shared across workers.
type LocalRecognizer struct {
	Binary       string
	FFmpegBinary string
	PrimaryModel string
	RefineModel  string
	Thresholds   QualityThresholds
	Exec         Executor
	WorkDir      string
}

type rawOutputSegment struct {
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	Temperature      float64 `json:"temperature"`
}

// Transcribe runs the fast pass over the whole file, then refines any
// flagged segment individually before returning the merged result in time
// order.
func (r *LocalRecognizer) Transcribe(ctx context.Context, audioPath string, opts Options) ([]store.Segment, error) {
	if r.Exec == nil {
		r.Exec = commandExecutor{}
	}

	fast, err := r.runPass(ctx, r.PrimaryModel, audioPath, opts.Language, false)
	if err != nil {
		return nil, fmt.Errorf("asr: primary pass: %w", err)
	}

	out := make([]store.Segment, 0, len(fast))
	for _, seg := range fast {
		if !r.Thresholds.NeedsRefinement(seg) {
			out = append(out, seg)
			continue
		}
		seg.NeedsRefinement = true

		refined, err := r.refineSegment(ctx, audioPath, seg, opts.Language)
		if err != nil {
			// Refinement is best-effort; fall back to the flagged fast-pass
			// segment rather than failing the whole transcription.
			out = append(out, seg)
			continue
		}
		out = append(out, refined)
	}
	return out, nil
}

func (r *LocalRecognizer) runPass(ctx context.Context, model, audioPath, language string, reASR bool) ([]store.Segment, error) {
	outputPath := audioPath + ".asr.json"
	args := []string{
		audioPath,
		"--model", model,
		"--output_format", "json",
		"--output_file", outputPath,
		"--temperature", "0",
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	if _, err := r.Exec.Run(ctx, r.Binary, args); err != nil {
		return nil, err
	}
	defer os.Remove(outputPath)

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read asr output: %w", err)
	}

	var raw struct {
		Segments []rawOutputSegment `json:"segments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse asr output: %w", err)
	}

	segments := make([]store.Segment, 0, len(raw.Segments))
	for _, s := range raw.Segments {
		segments = append(segments, store.Segment{
			StartSec:         s.Start,
			EndSec:           s.End,
			Text:             s.Text,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
			TemperatureUsed:  s.Temperature,
			ReASR:            reASR,
		})
	}
	return segments, nil
}

// refineSegment extracts the flagged segment's audio range and re-runs
// RefineModel over just that slice.
func (r *LocalRecognizer) refineSegment(ctx context.Context, audioPath string, seg store.Segment, language string) (store.Segment, error) {
	workDir := r.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(audioPath)
	}
	clipPath := filepath.Join(workDir, fmt.Sprintf("refine_%d_%d.wav", int64(seg.StartSec*1000), int64(seg.EndSec*1000)))
	defer os.Remove(clipPath)

	duration := seg.EndSec - seg.StartSec
	extractArgs := []string{
		"-y", "-i", audioPath,
		"-ss", strconv.FormatFloat(seg.StartSec, 'f', 3, 64),
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-ar", "16000", "-ac", "1",
		clipPath,
	}
	ffmpeg := r.FFmpegBinary
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := r.Exec.Run(ctx, ffmpeg, extractArgs); err != nil {
		return store.Segment{}, fmt.Errorf("extract refine clip: %w", err)
	}

	refined, err := r.runPass(ctx, r.RefineModel, clipPath, language, true)
	if err != nil {
		return store.Segment{}, err
	}
	if len(refined) == 0 {
		return store.Segment{}, fmt.Errorf("refine pass produced no segments")
	}

	merged := seg
	merged.Text = joinSegmentText(refined)
	merged.AvgLogprob = refined[0].AvgLogprob
	merged.CompressionRatio = refined[0].CompressionRatio
	merged.NoSpeechProb = refined[0].NoSpeechProb
	merged.TemperatureUsed = refined[0].TemperatureUsed
	merged.ReASR = true
	return merged, nil
}

func joinSegmentText(segments []store.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			parts = append(parts, strings.TrimSpace(s.Text))
		}
	}
	return strings.Join(parts, " ")
}
