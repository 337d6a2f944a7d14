package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corpusd/internal/audio"
	"corpusd/internal/captions"
	"corpusd/internal/logging"
	"corpusd/internal/services"
	"corpusd/internal/stage"
	"corpusd/internal/store"
)

// ioStage fetches manual captions when available, falling back to audio
// acquisition. It never calls the recognizer; the caption fast-path is
// decided entirely by whether Fetch found a usable track.
type ioStage struct {
	Fetcher       *captions.Fetcher
	Acquirer      *audio.Acquirer
	LanguagePrefs []string
	Constraints   audio.Constraints
	logger        *slog.Logger
}

// IOStageConfig configures the I/O stage's collaborators: the caption
// fetcher and audio acquirer, the preferred caption languages, and the
// acquisition constraints.
type IOStageConfig struct {
	Fetcher       *captions.Fetcher
	Acquirer      *audio.Acquirer
	LanguagePrefs []string
	Constraints   audio.Constraints
}

// NewIOStage constructs the I/O worker pool's stage handler.
func NewIOStage(cfg IOStageConfig) *ioStage {
	return &ioStage{
		Fetcher:       cfg.Fetcher,
		Acquirer:      cfg.Acquirer,
		LanguagePrefs: cfg.LanguagePrefs,
		Constraints:   cfg.Constraints,
	}
}

func (s *ioStage) SetLogger(l *slog.Logger) { s.logger = l }

func (s *ioStage) Prepare(_ context.Context, item *store.WorkItem) error {
	if item.Source.ExternalID == "" {
		return services.Wrap(services.ErrValidation, "io", "prepare", "missing external id", nil)
	}
	return nil
}

func (s *ioStage) Execute(ctx context.Context, item *store.WorkItem) error {
	cues, found, err := s.Fetcher.Fetch(ctx, item.Source.ExternalID, s.LanguagePrefs)
	if err != nil {
		return services.Wrap(services.ErrTransient, "io", "fetch_captions", "caption fetch failed", err)
	}
	if found {
		item.ManualCaptions = cues
		item.UsedManualCaptions = true
		logging.NewComponentLogger(s.logger, "io").Info("using manual captions",
			logging.String(logging.FieldEventType, "caption_fast_path"),
			logging.Int("cue_count", len(cues)))
		return nil
	}

	result, reason, err := s.Acquirer.Acquire(ctx, item.Source.ExternalID, s.Constraints)
	if err != nil {
		return services.Wrap(services.ErrTransient, "io", "acquire_audio", "audio acquisition failed", err)
	}
	switch reason {
	case audio.SkipInaccessible:
		return services.WrapHint(services.ErrValidation, "io", "acquire_audio",
			"content is members-only, private, or otherwise inaccessible",
			"E_INACCESSIBLE", "terminal-skip, not counted against retry budget", nil)
	case audio.SkipTooLarge:
		// Unlike SkipInaccessible this is not a skip: B2 requires a still-oversize
		// file to end in StatusError, so it keeps retrying (and counting against
		// the retry budget) like any other external-tool failure instead of
		// terminal-skipping on the first attempt.
		return services.WrapHint(services.ErrExternalTool, "io", "acquire_audio",
			"audio exceeds configured size/duration constraints after compression",
			"E_TOO_LARGE", "", nil)
	case audio.SkipNone:
		// fall through
	default:
		return fmt.Errorf("orchestrator: io: unhandled skip reason %q", reason)
	}

	if s.Constraints.Container != "mp3" && !result.IsMono16kHz {
		logging.WarnWithContext(logging.NewComponentLogger(s.logger, "io"),
			"acquired audio is not mono 16kHz", "audio_layout_mismatch",
			logging.String("external_id", item.Source.ExternalID))
	}

	logging.NewComponentLogger(s.logger, "io").Info("audio acquired",
		logging.String(logging.FieldEventType, "audio_acquired"),
		logging.String("external_id", item.Source.ExternalID),
		logging.String("size", logging.FormatBytes(result.SizeBytes)),
		logging.String("duration", logging.FormatDuration(time.Duration(result.DurationS*float64(time.Second)))))

	item.AudioPath = result.LocalPath
	return nil
}

func (s *ioStage) HealthCheck(_ context.Context) stage.Health {
	if s.Fetcher == nil || s.Acquirer == nil {
		return stage.Unhealthy("io", "fetcher or acquirer not configured")
	}
	return stage.Healthy("io")
}
