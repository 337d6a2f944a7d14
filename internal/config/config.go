package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// SourceBackend selects the Source Lister implementation.
type SourceBackend string

const (
	SourceBackendScraper SourceBackend = "scraper"
	SourceBackendAPI     SourceBackend = "api"
)

// QualityThresholds are the ASR re-transcription triggers from the recognizer contract.
type QualityThresholds struct {
	AvgLogprob float64 `toml:"avg_logprob"`
	Compression float64 `toml:"compression"`
	NoSpeech    float64 `toml:"no_speech"`
}

// Config encapsulates all configuration values for the ingestion daemon.
type Config struct {
	DatabaseURL   string        `toml:"database_url"`
	SourceBackend SourceBackend `toml:"source_backend"`
	APIKey        string        `toml:"api_key"`
	SourceAPIBaseURL string     `toml:"source_api_base_url"`
	ChannelRef    string        `toml:"channel_reference"`

	StorageDir        string `toml:"storage_dir"`
	StoreAudioLocally bool   `toml:"store_audio_locally"`
	ProductionMode    bool   `toml:"production_mode"`

	VoiceProfileDir  string  `toml:"voice_profile_dir"`
	VoiceProfileName string  `toml:"voice_profile_name"`
	ChaffeeMinSim    float64 `toml:"chaffee_min_sim"`

	NIO int `toml:"n_io"`
	NASR int `toml:"n_asr"`
	NDB int `toml:"n_db"`

	BatchEmbedSize int `toml:"batch_embed_size"`

	WhisperModelPrimary string            `toml:"whisper_model_primary"`
	WhisperModelRefine  string            `toml:"whisper_model_refine"`
	ASRQualityThresholds QualityThresholds `toml:"asr_quality_thresholds"`
	RemoteASRURL        string            `toml:"remote_asr_url"`
	RemoteASRAPIKey     string            `toml:"remote_asr_api_key"`
	RemoteASRModel      string            `toml:"remote_asr_model"`
	RemoteASRRatePerMin float64           `toml:"remote_asr_rate_per_min"`

	MediaDownloaderBinary string `toml:"media_downloader_binary"`
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
	WhisperBinary         string `toml:"whisper_binary"`
	DiarizerBinary        string `toml:"diarizer_binary"`

	EmbeddingDimension int    `toml:"embedding_dimension"`
	EmbedTargetOnly    bool   `toml:"embed_target_only"`
	EmbeddingModel     string `toml:"embedding_model"`
	EmbeddingBaseURL   string `toml:"embedding_base_url"`
	EmbeddingAPIKey    string `toml:"embedding_api_key"`

	TargetMinChars  int     `toml:"target_min_chars"`
	TargetMaxChars  int     `toml:"target_max_chars"`
	MaxGapSeconds   float64 `toml:"max_gap_s"`
	MaxMergeSeconds float64 `toml:"max_merge_s"`

	SkipShorts      bool `toml:"skip_shorts"`
	MaxFileSizeMB   int  `toml:"max_file_size_mb"`
	MaxDurationS    int  `toml:"max_duration_s"`
	SkipLive        bool `toml:"skip_live"`
	SkipUpcoming    bool `toml:"skip_upcoming"`
	SkipMembersOnly bool `toml:"skip_members_only"`
	NewestFirst     bool `toml:"newest_first"`

	ForceReprocess   bool `toml:"force_reprocess"`
	ForceSpeakerID   bool `toml:"force_speaker_id"`
	RetryMax         int  `toml:"retry_max"`
	BackoffBaseMs    int  `toml:"backoff_base_ms"`

	MedicalGradeCaptions bool `toml:"medical_grade_captions"`
	MonologueAssumption  bool `toml:"monologue_assumption"`

	MaxCostPerRun float64 `toml:"max_cost_per_run"`

	CancelOnSigint bool `toml:"cancel_on_sigint"`

	LogDir           string `toml:"log_dir"`
	LogFormat        string `toml:"log_format"`
	LogLevel         string `toml:"log_level"`
	LogRetentionDays int    `toml:"log_retention_days"`

	IOTimeoutSeconds  int `toml:"io_timeout_seconds"`
	ASRTimeoutSeconds int `toml:"asr_timeout_seconds"`
	DBTimeoutSeconds  int `toml:"db_timeout_seconds"`

	NtfyTopic                string `toml:"ntfy_topic"`
	NtfyRequestTimeout       int    `toml:"ntfy_request_timeout_seconds"`
	NotifyDedupWindowSeconds int    `toml:"notify_dedup_window_seconds"`
	NotifyRunLifecycle       bool   `toml:"notify_run_lifecycle"`
	NotifySkips              bool   `toml:"notify_skips"`
	NotifyErrors             bool   `toml:"notify_errors"`
	NotifyBudget             bool   `toml:"notify_budget"`
}

const (
	defaultStorageDir        = "~/.local/share/corpusd/audio"
	defaultVoiceProfileDir   = "~/.config/corpusd/voice-profiles"
	defaultVoiceProfileName  = "chaffee"
	defaultLogDir            = "~/.local/share/corpusd/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultWhisperPrimary    = "distil-large-v3"
	defaultWhisperRefine     = "large-v3"
	defaultEmbeddingModel    = "text-embedding-3-small"

	defaultMediaDownloaderBinary = "yt-dlp"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultWhisperBinary         = "whisper"
	defaultDiarizerBinary        = "pyannote-cli"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		SourceBackend:     SourceBackendScraper,
		StorageDir:        defaultStorageDir,
		StoreAudioLocally: true,
		ProductionMode:    false,

		VoiceProfileDir:  defaultVoiceProfileDir,
		VoiceProfileName: defaultVoiceProfileName,
		ChaffeeMinSim:    0.62,

		NIO:  12,
		NASR: 2,
		NDB:  4,

		BatchEmbedSize: 100,

		WhisperModelPrimary: defaultWhisperPrimary,
		WhisperModelRefine:  defaultWhisperRefine,
		ASRQualityThresholds: QualityThresholds{
			AvgLogprob:  -1.0,
			Compression: 2.4,
			NoSpeech:    0.6,
		},
		RemoteASRRatePerMin: 0.006,
		RemoteASRModel:      "whisper-1",

		MediaDownloaderBinary: defaultMediaDownloaderBinary,
		FFmpegBinary:          defaultFFmpegBinary,
		FFprobeBinary:         defaultFFprobeBinary,
		WhisperBinary:         defaultWhisperBinary,
		DiarizerBinary:        defaultDiarizerBinary,

		EmbeddingDimension: 1536,
		EmbedTargetOnly:    true,
		EmbeddingModel:     defaultEmbeddingModel,

		TargetMinChars:  120,
		TargetMaxChars:  300,
		MaxGapSeconds:   2.0,
		MaxMergeSeconds: 30.0,

		SkipShorts:      true,
		MaxFileSizeMB:   500,
		MaxDurationS:    0,
		SkipLive:        true,
		SkipUpcoming:    true,
		SkipMembersOnly: false,
		NewestFirst:     true,

		ForceReprocess: false,
		RetryMax:       3,
		BackoffBaseMs:  500,

		MedicalGradeCaptions: true,
		MonologueAssumption:  true,

		MaxCostPerRun: 10.0,

		CancelOnSigint: true,

		LogDir:           defaultLogDir,
		LogFormat:        defaultLogFormat,
		LogLevel:         defaultLogLevel,
		LogRetentionDays: 30,

		IOTimeoutSeconds:  300,
		ASRTimeoutSeconds: 1800,
		DBTimeoutSeconds:  120,

		NtfyRequestTimeout:       10,
		NotifyDedupWindowSeconds: 600,
		NotifyRunLifecycle:       true,
		NotifySkips:              true,
		NotifyErrors:             true,
		NotifyBudget:             true,
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/corpusd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized, and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/corpusd/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("corpusd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.LogDir}
	if c.StoreAudioLocally && !c.ProductionMode {
		dirs = append(dirs, c.StorageDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
