package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corpusd/internal/asr"
	"corpusd/internal/audio"
	"corpusd/internal/captions"
	"corpusd/internal/config"
	"corpusd/internal/embedding"
	"corpusd/internal/lister"
	"corpusd/internal/notifications"
	"corpusd/internal/optimizer"
	"corpusd/internal/orchestrator"
	"corpusd/internal/store"
	"corpusd/internal/voiceid"
	"corpusd/internal/voiceprofile"
)

// components bundles everything buildOrchestrator constructs so the caller
// can close what needs closing (today, just the store's connection pool)
// once the run finishes.
type components struct {
	orch  *orchestrator.Orchestrator
	store store.Store
}

func (c *components) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// buildOrchestrator wires every pipeline collaborator from cfg — lister,
// store, caption fetcher, audio acquirer, recognizers, diarizer, optimizer,
// embedder — and returns a fully configured Orchestrator ready to Run.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	voiceProfiles, err := voiceprofile.Load(cfg.VoiceProfileDir, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load voice profiles: %w", err)
	}

	sourceLister, err := lister.New(lister.Options{
		Backend:       lister.Backend(cfg.SourceBackend),
		ScraperBinary: cfg.MediaDownloaderBinary,
		APIBaseURL:    cfg.SourceAPIBaseURL,
		APIKey:        cfg.APIKey,
		Cache:         st,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build source lister: %w", err)
	}

	notifier := notifications.NewService(cfg)

	fetcher := captions.NewFetcher(cfg.MediaDownloaderBinary, cfg.MedicalGradeCaptions)
	acquirer := audio.NewAcquirer(cfg.MediaDownloaderBinary, cfg.FFprobeBinary, cfg.StorageDir, cfg.StoreAudioLocally)
	acquirer.FFmpegBinary = cfg.FFmpegBinary

	gpuCount := orchestrator.DetectGPUCount()

	var localRecognizer asr.Recognizer
	if gpuCount > 0 {
		localRecognizer = &asr.LocalRecognizer{
			Binary:       cfg.WhisperBinary,
			FFmpegBinary: cfg.FFmpegBinary,
			PrimaryModel: cfg.WhisperModelPrimary,
			RefineModel:  cfg.WhisperModelRefine,
			Thresholds: asr.QualityThresholds{
				AvgLogprob:  cfg.ASRQualityThresholds.AvgLogprob,
				Compression: cfg.ASRQualityThresholds.Compression,
				NoSpeech:    cfg.ASRQualityThresholds.NoSpeech,
			},
			WorkDir: cfg.StorageDir,
		}
	}

	var remoteRecognizer asr.Recognizer
	if cfg.RemoteASRURL != "" {
		remote := asr.NewRemoteRecognizer(cfg.RemoteASRURL, cfg.RemoteASRAPIKey, cfg.RemoteASRModel)
		remote.RatePerMin = cfg.RemoteASRRatePerMin
		remoteRecognizer = remote
	}

	var diarizer voiceid.Diarizer
	if cfg.DiarizerBinary != "" {
		diarizer = voiceid.NewSubprocessDiarizer(cfg.DiarizerBinary)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	ioStage := orchestrator.NewIOStage(orchestrator.IOStageConfig{
		Fetcher:       fetcher,
		Acquirer:      acquirer,
		LanguagePrefs: []string{"en"},
		Constraints: audio.Constraints{
			MaxSizeMB:    cfg.MaxFileSizeMB,
			MaxDurationS: cfg.MaxDurationS,
			Container:    "wav16k",
		},
	})

	asrStage := orchestrator.NewASRStage(orchestrator.ASRStageConfig{
		Store:               st,
		Recognizer:          remoteRecognizer,
		Diarizer:            diarizer,
		VoiceProfiles:       voiceProfiles,
		ProfileName:         cfg.VoiceProfileName,
		MonologueAssumption: cfg.MonologueAssumption,
		ForceSpeakerID:      cfg.ForceSpeakerID,
		ChaffeeMinSim:       cfg.ChaffeeMinSim,
		OptimizerParams: optimizer.Params{
			TargetMinChars:    cfg.TargetMinChars,
			TargetMaxChars:    cfg.TargetMaxChars,
			MaxGapSeconds:     cfg.MaxGapSeconds,
			MaxMergeDurationS: cfg.MaxMergeSeconds,
		}.WithDefaults(),
		Embedder:        embedder,
		BatchEmbedSize:  cfg.BatchEmbedSize,
		EmbedTargetOnly: cfg.EmbedTargetOnly,
		RetryMax:        cfg.RetryMax,
	})

	dbStage := orchestrator.NewDBStage(st)

	orch := &orchestrator.Orchestrator{
		Store:    st,
		Lister:   sourceLister,
		Notifier: notifier,
		Logger:   logger,

		IOStage:  ioStage,
		ASRStage: asrStage,
		DBStage:  dbStage,

		LocalRecognizer:  localRecognizer,
		RemoteRecognizer: remoteRecognizer,

		Filters: lister.Filters{
			SkipShorts:      cfg.SkipShorts,
			MaxDurationS:    cfg.MaxDurationS,
			NewestFirst:     cfg.NewestFirst,
			SkipLive:        cfg.SkipLive,
			SkipUpcoming:    cfg.SkipUpcoming,
			SkipMembersOnly: cfg.SkipMembersOnly,
		},
		ForceReprocess: cfg.ForceReprocess,

		NIO:  cfg.NIO,
		NASR: cfg.NASR,
		NDB:  cfg.NDB,

		RetryMax:      cfg.RetryMax,
		BackoffBase:   time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		RatePerMin:    cfg.RemoteASRRatePerMin,
		MaxCostPerRun: cfg.MaxCostPerRun,
		GPUCount:      gpuCount,

		IOTimeout:  time.Duration(cfg.IOTimeoutSeconds) * time.Second,
		ASRTimeout: time.Duration(cfg.ASRTimeoutSeconds) * time.Second,
		DBTimeout:  time.Duration(cfg.DBTimeoutSeconds) * time.Second,
	}

	return &components{orch: orch, store: st}, nil
}

func buildEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	if cfg.EmbeddingAPIKey == "" {
		return nil, fmt.Errorf("embedding_api_key must be configured")
	}
	return embedding.NewOpenAIEmbedder(
		cfg.EmbeddingAPIKey,
		cfg.EmbeddingBaseURL,
		cfg.EmbeddingModel,
		cfg.EmbeddingDimension,
		2*time.Minute,
	)
}
