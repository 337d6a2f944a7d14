package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"run", "validate-config", "version"} {
		if !names[want] {
			t.Fatalf("expected %q subcommand, got %v", want, names)
		}
	}
}

func TestValidateConfigCommandReportsStatus(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`database_url = "postgres://localhost/corpus"`,
		`channel_reference = "UCexample"`,
		`embedding_api_key = "sk-test"`,
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "validate-config"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate-config: %v", err)
	}
	if !strings.Contains(stdout.String(), "config OK") {
		t.Fatalf("expected OK message, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "postgres://localhost/corpus") == false {
		t.Fatalf("expected unredacted credential-free URL preserved, got %q", stdout.String())
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout.String(), "corpusd") {
		t.Fatalf("expected version output to mention corpusd, got %q", stdout.String())
	}
}
