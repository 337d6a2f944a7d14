package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/corpusd/config.toml"
		}
		return fmt.Errorf("database_url is required. Set DATABASE_URL env var or edit %s", defaultPath)
	}
	if c.SourceBackend != SourceBackendScraper && c.SourceBackend != SourceBackendAPI {
		return fmt.Errorf("source_backend: unsupported value %q", c.SourceBackend)
	}
	if c.SourceBackend == SourceBackendAPI && strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api_key is required when source_backend is \"api\"")
	}
	if c.SourceBackend == SourceBackendAPI && strings.TrimSpace(c.SourceAPIBaseURL) == "" {
		return errors.New("source_api_base_url is required when source_backend is \"api\"")
	}
	if strings.TrimSpace(c.ChannelRef) == "" {
		return errors.New("channel_reference must be set")
	}
	if c.EmbeddingDimension <= 0 {
		return errors.New("embedding_dimension must be positive")
	}
	if strings.TrimSpace(c.EmbeddingAPIKey) == "" {
		return errors.New("embedding_api_key is required")
	}
	if c.ChaffeeMinSim <= -1 || c.ChaffeeMinSim > 1 {
		return errors.New("chaffee_min_sim must be within (-1, 1]")
	}
	if c.TargetMinChars <= 0 || c.TargetMaxChars <= 0 {
		return errors.New("target_min_chars and target_max_chars must be positive")
	}
	if c.TargetMinChars >= c.TargetMaxChars {
		return errors.New("target_min_chars must be less than target_max_chars")
	}
	if c.MaxGapSeconds < 0 {
		return errors.New("max_gap_s must be >= 0")
	}
	if c.MaxMergeSeconds <= 0 {
		return errors.New("max_merge_s must be positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"n_io":                c.NIO,
		"n_asr":               c.NASR,
		"n_db":                c.NDB,
		"batch_embed_size":    c.BatchEmbedSize,
		"retry_max":           c.RetryMax,
		"backoff_base_ms":     c.BackoffBaseMs,
		"io_timeout_seconds":  c.IOTimeoutSeconds,
		"asr_timeout_seconds": c.ASRTimeoutSeconds,
		"db_timeout_seconds":  c.DBTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.ASRQualityThresholds.Compression <= 0 {
		return errors.New("asr_quality_thresholds.compression must be positive")
	}
	if c.ASRQualityThresholds.NoSpeech < 0 || c.ASRQualityThresholds.NoSpeech > 1 {
		return errors.New("asr_quality_thresholds.no_speech must be between 0 and 1")
	}
	if c.MaxCostPerRun < 0 {
		return errors.New("max_cost_per_run must be >= 0")
	}
	if c.RemoteASRRatePerMin < 0 {
		return errors.New("remote_asr_rate_per_min must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
