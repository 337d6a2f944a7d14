package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) applyEnvOverrides() {
	if value, ok := os.LookupEnv("DATABASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.DatabaseURL = value
	}
	if value, ok := os.LookupEnv("CORPUSD_VOICE_PROFILE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.VoiceProfileDir = value
	}
	if value, ok := os.LookupEnv("CORPUSD_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.APIKey = value
	}
	if value, ok := os.LookupEnv("CORPUSD_SOURCE_API_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.SourceAPIBaseURL = value
	}
	if value, ok := os.LookupEnv("CORPUSD_EMBEDDING_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.EmbeddingAPIKey = value
	} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok && strings.TrimSpace(value) != "" && c.EmbeddingAPIKey == "" {
		c.EmbeddingAPIKey = value
	}
	if value, ok := os.LookupEnv("CORPUSD_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.LogLevel = value
	}
	if value, ok := os.LookupEnv("CORPUSD_REMOTE_ASR_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.RemoteASRAPIKey = value
	} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok && strings.TrimSpace(value) != "" && c.RemoteASRAPIKey == "" {
		c.RemoteASRAPIKey = value
	}
}

func (c *Config) normalize() error {
	var err error
	if c.StorageDir, err = expandPath(c.StorageDir); err != nil {
		return fmt.Errorf("storage_dir: %w", err)
	}
	if c.VoiceProfileDir, err = expandPath(c.VoiceProfileDir); err != nil {
		return fmt.Errorf("voice_profile_dir: %w", err)
	}
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}

	if c.ProductionMode {
		c.StoreAudioLocally = false
	}

	c.SourceBackend = SourceBackend(strings.ToLower(strings.TrimSpace(string(c.SourceBackend))))
	if c.SourceBackend == "" {
		c.SourceBackend = SourceBackendScraper
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "", "console":
		c.LogFormat = "console"
	case "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	c.VoiceProfileName = strings.ToLower(strings.TrimSpace(c.VoiceProfileName))
	if c.VoiceProfileName == "" {
		c.VoiceProfileName = defaultVoiceProfileName
	}

	if c.WhisperModelPrimary == "" {
		c.WhisperModelPrimary = defaultWhisperPrimary
	}
	if c.WhisperModelRefine == "" {
		c.WhisperModelRefine = defaultWhisperRefine
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModel
	}
	if c.MediaDownloaderBinary == "" {
		c.MediaDownloaderBinary = defaultMediaDownloaderBinary
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = defaultFFmpegBinary
	}
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = defaultFFprobeBinary
	}
	if c.WhisperBinary == "" {
		c.WhisperBinary = defaultWhisperBinary
	}
	if c.DiarizerBinary == "" {
		c.DiarizerBinary = defaultDiarizerBinary
	}

	if c.NIO <= 0 {
		c.NIO = 12
	}
	if c.NASR <= 0 {
		c.NASR = 2
	}
	if c.NDB <= 0 {
		c.NDB = 4
	}
	if c.BatchEmbedSize <= 0 {
		c.BatchEmbedSize = 100
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.BackoffBaseMs <= 0 {
		c.BackoffBaseMs = 500
	}
	if c.IOTimeoutSeconds <= 0 {
		c.IOTimeoutSeconds = 300
	}
	if c.ASRTimeoutSeconds <= 0 {
		c.ASRTimeoutSeconds = 1800
	}
	if c.DBTimeoutSeconds <= 0 {
		c.DBTimeoutSeconds = 120
	}

	return nil
}
