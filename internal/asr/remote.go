package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"corpusd/internal/store"
)

const (
	defaultRemoteTimeout = 10 * time.Minute
	maxRemoteUploadBytes = 25 * 1024 * 1024
	remoteTranscribePath = "/v1/audio/transcriptions"
)

// ErrTooLarge is returned when the audio file exceeds the remote API's
// upload cap and the caller has not pre-applied the compression fallback.
var ErrTooLarge = fmt.Errorf("asr: audio exceeds remote upload limit of %d bytes", maxRemoteUploadBytes)

// RemoteRecognizer uploads audio to an HTTP transcription API. It is
// stateless: concurrency is bounded by the caller's rate-limit policy, not
// by local GPU availability.
type RemoteRecognizer struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	RatePerMin float64
}

// NewRemoteRecognizer constructs a recognizer against baseURL.
func NewRemoteRecognizer(baseURL, apiKey, model string) *RemoteRecognizer {
	return &RemoteRecognizer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: defaultRemoteTimeout,
		},
	}
}

// EstimateCostUSD returns the modeled cost of transcribing durationSeconds
// of audio at the recognizer's configured per-minute rate.
func (r *RemoteRecognizer) EstimateCostUSD(durationSeconds float64) float64 {
	return (durationSeconds / 60) * r.RatePerMin
}

type remoteResponseSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type remoteResponse struct {
	Segments []remoteResponseSegment `json:"segments"`
}

// Transcribe uploads the audio file and returns its segments. Remote
// segments carry no quality metrics, so they are left at zero value: the
// refinement-pass thresholds only ever apply to the local recognizer.
func (r *RemoteRecognizer) Transcribe(ctx context.Context, audioPath string, opts Options) ([]store.Segment, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("asr: stat audio: %w", err)
	}
	if info.Size() > maxRemoteUploadBytes {
		return nil, ErrTooLarge
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("asr: open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", r.Model); err != nil {
		return nil, fmt.Errorf("asr: write model field: %w", err)
	}
	if opts.Language != "" {
		if err := writer.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("asr: write language field: %w", err)
		}
	}

	field, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("asr: create file field: %w", err)
	}
	if _, err := io.Copy(field, file); err != nil {
		return nil, fmt.Errorf("asr: copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("asr: close multipart writer: %w", err)
	}

	endpoint := r.BaseURL + remoteTranscribePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("asr: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.APIKey)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr: http request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("asr: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("asr: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("asr: decode response: %w", err)
	}

	segments := make([]store.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, store.Segment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     s.Text,
		})
	}
	return segments, nil
}
