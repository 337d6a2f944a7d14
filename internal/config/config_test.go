package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://localhost/corpus"
	cfg.ChannelRef = "UCexample"
	cfg.EmbeddingAPIKey = "sk-test"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := Default()
	cfg.ChannelRef = "UCexample"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database_url")
	}
}

func TestValidateRequiresChannelReference(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://localhost/corpus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing channel_reference")
	}
}

func TestValidateAPIBackendRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://localhost/corpus"
	cfg.ChannelRef = "UCexample"
	cfg.SourceBackend = SourceBackendAPI
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing api_key with api backend")
	}
}

func TestValidateTargetCharsOrdering(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://localhost/corpus"
	cfg.ChannelRef = "UCexample"
	cfg.EmbeddingAPIKey = "sk-test"
	cfg.TargetMinChars = 400
	cfg.TargetMaxChars = 300
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when target_min_chars >= target_max_chars")
	}
}

func TestProductionModeOverridesStorageFlag(t *testing.T) {
	cfg := Default()
	cfg.StoreAudioLocally = true
	cfg.ProductionMode = true
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.StoreAudioLocally {
		t.Fatal("expected production_mode to force store_audio_locally=false")
	}
}
