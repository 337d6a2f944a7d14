package orchestrator

import (
	"context"
	"log/slog"

	"corpusd/internal/asr"
	"corpusd/internal/embedding"
	"corpusd/internal/logging"
	"corpusd/internal/optimizer"
	"corpusd/internal/services"
	"corpusd/internal/stage"
	"corpusd/internal/store"
	"corpusd/internal/voiceid"
	"corpusd/internal/voiceprofile"
)

// asrStage transcribes, diarizes/labels, optimizes, and embeds a WorkItem.
// Items on the caption fast-path skip recognition and diarization; their
// raw cues are converted to segments here, so optimization and embedding
// have a single entry point regardless of source.
type asrStage struct {
	Store               store.Store
	Recognizer          asr.Recognizer
	Diarizer            voiceid.Diarizer
	VoiceProfiles       *voiceprofile.Store
	ProfileName         string
	MonologueAssumption bool
	ForceSpeakerID      bool
	ChaffeeMinSim       float64
	OptimizerParams     optimizer.Params
	Embedder            embedding.Embedder
	BatchEmbedSize      int
	EmbedTargetOnly     bool
	RetryMax            int
	logger              *slog.Logger
}

// ASRStageConfig configures the ASR worker pool's stage handler: the
// recognizer, the diarizer and its voice-profile store, the speaker-id and
// optimizer policy knobs, and the embedder.
type ASRStageConfig struct {
	Store               store.Store
	Recognizer          asr.Recognizer
	Diarizer            voiceid.Diarizer
	VoiceProfiles       *voiceprofile.Store
	ProfileName         string
	MonologueAssumption bool
	ForceSpeakerID      bool
	ChaffeeMinSim       float64
	OptimizerParams     optimizer.Params
	Embedder            embedding.Embedder
	BatchEmbedSize      int
	EmbedTargetOnly     bool
	RetryMax            int
}

// NewASRStage constructs the ASR worker pool's stage handler.
func NewASRStage(cfg ASRStageConfig) *asrStage {
	return &asrStage{
		Store:               cfg.Store,
		Recognizer:          cfg.Recognizer,
		Diarizer:            cfg.Diarizer,
		VoiceProfiles:       cfg.VoiceProfiles,
		ProfileName:         cfg.ProfileName,
		MonologueAssumption: cfg.MonologueAssumption,
		ForceSpeakerID:      cfg.ForceSpeakerID,
		ChaffeeMinSim:       cfg.ChaffeeMinSim,
		OptimizerParams:     cfg.OptimizerParams.WithDefaults(),
		Embedder:            cfg.Embedder,
		BatchEmbedSize:      cfg.BatchEmbedSize,
		EmbedTargetOnly:     cfg.EmbedTargetOnly,
		RetryMax:            cfg.RetryMax,
	}
}

func (s *asrStage) SetLogger(l *slog.Logger) { s.logger = l }

func (s *asrStage) Prepare(_ context.Context, item *store.WorkItem) error {
	if !item.UsedManualCaptions && item.AudioPath == "" {
		return services.Wrap(services.ErrValidation, "asr", "prepare", "no audio or manual captions available", nil)
	}
	return nil
}

func (s *asrStage) Execute(ctx context.Context, item *store.WorkItem) error {
	logger := logging.NewComponentLogger(s.logger, "asr")

	var raw []store.Segment
	if item.UsedManualCaptions {
		raw = captionsToSegments(item.ManualCaptions, item.Source.ExternalID)
	} else {
		segs, err := s.Recognizer.Transcribe(ctx, item.AudioPath, asr.Options{})
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "asr", "transcribe", "speech recognition failed", err)
		}
		raw = withExternalID(segs, item.Source.ExternalID)
	}
	item.RawSegments = raw

	labeled := s.label(ctx, logger, item, raw)
	// The caption fast-path never diarizes, so it skips straight from
	// transcribed to optimized.
	if !item.UsedManualCaptions {
		if err := s.transition(ctx, item, store.StatusDiarized); err != nil {
			return err
		}
	}

	optimized := optimizer.Optimize(labeled, s.OptimizerParams)
	if err := s.transition(ctx, item, store.StatusOptimized); err != nil {
		return err
	}

	embedded, err := embedding.Embed(ctx, s.Embedder, optimized, s.BatchEmbedSize, s.EmbedTargetOnly)
	if err != nil {
		// item.Attempt counts the failed attempts before this one, so the
		// orchestrator's last attempt arrives with Attempt == RetryMax-1.
		if item.Attempt+1 < s.RetryMax {
			return services.Wrap(services.ErrTransient, "asr", "embed", "embedding batch failed", err)
		}
		logging.WarnWithContext(logger, "embedding exhausted retries, storing segments without vectors", "embedding_degraded",
			logging.String("external_id", item.Source.ExternalID),
			logging.Error(err))
		embedded = optimized
		item.EmbeddingDegraded = true
	}
	if !item.EmbeddingDegraded {
		if err := s.transition(ctx, item, store.StatusEmbedded); err != nil {
			return err
		}
	}

	item.OptimizedSegments = embedded
	return nil
}

// transition records an intra-stage status advance. Tolerates a nil Store
// so the stage can run standalone against fakes.
func (s *asrStage) transition(ctx context.Context, item *store.WorkItem, status store.Status) error {
	if s.Store == nil {
		return nil
	}
	if err := s.Store.UpdateStatus(ctx, item.Source.ExternalID, status, store.StatusUpdate{}); err != nil {
		return services.Wrap(services.ErrTransient, "asr", "update_status", "status transition failed", err)
	}
	item.Source.Status = status
	return nil
}

// label applies the configured speaker-identification policy: the
// monologue assumption (unless forced off), diarization+attribution
// against the active voice profile, or — on any diarizer failure — a
// non-fatal degrade to UNKNOWN for every segment.
func (s *asrStage) label(ctx context.Context, logger *slog.Logger, item *store.WorkItem, segments []store.Segment) []store.Segment {
	if item.UsedManualCaptions {
		return embedding.ApplySpeakerDefaulting(segments, s.MonologueAssumption)
	}

	if s.MonologueAssumption && !s.ForceSpeakerID {
		return voiceid.ApplyMonologueAssumption(segments)
	}

	if s.Diarizer == nil || s.VoiceProfiles == nil {
		logging.WarnWithContext(logger, "speaker identification unavailable, labeling UNKNOWN", "speaker_id_degraded",
			logging.String("external_id", item.Source.ExternalID))
		return labelAllUnknown(segments)
	}

	profile, err := s.VoiceProfiles.Get(s.ProfileName)
	if err != nil {
		logging.WarnWithContext(logger, "voice profile unavailable, labeling UNKNOWN", "speaker_id_degraded",
			logging.String("external_id", item.Source.ExternalID),
			logging.Error(err))
		return labelAllUnknown(segments)
	}

	turns, err := s.Diarizer.Diarize(ctx, item.AudioPath, profile)
	if err != nil {
		logging.WarnWithContext(logger, "diarization failed, labeling UNKNOWN", "speaker_id_degraded",
			logging.String("external_id", item.Source.ExternalID),
			logging.Error(err))
		return labelAllUnknown(segments)
	}

	threshold := s.ChaffeeMinSim
	if threshold <= 0 {
		threshold = profile.Threshold
	}
	return voiceid.Attribute(segments, turns, threshold, voiceid.DefaultMargin)
}

func (s *asrStage) HealthCheck(_ context.Context) stage.Health {
	if s.Recognizer == nil || s.Embedder == nil {
		return stage.Unhealthy("asr", "recognizer or embedder not configured")
	}
	return stage.Healthy("asr")
}

func captionsToSegments(cues []store.CaptionCue, externalID string) []store.Segment {
	out := make([]store.Segment, 0, len(cues))
	for _, cue := range cues {
		out = append(out, store.Segment{
			ExternalID: externalID,
			StartSec:   cue.StartSec,
			EndSec:     cue.EndSec,
			Text:       cue.Text,
		})
	}
	return out
}

func withExternalID(segments []store.Segment, externalID string) []store.Segment {
	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		seg.ExternalID = externalID
		out[i] = seg
	}
	return out
}

func labelAllUnknown(segments []store.Segment) []store.Segment {
	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		seg.SpeakerLabel = store.SpeakerUnknown
		out[i] = seg
	}
	return out
}
