package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
server:
  port: 4000
discord:
  token: "file-token"
redis:
  data_address: "127.0.0.1:6379"
  lock_addresses: ["a:1", "b:2", "c:3"]
lifecycle:
  close_lock: local
  restore_lookback: 30m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Fatalf("expected port 4000, got %d", cfg.Server.Port)
	}
	if cfg.Lifecycle.CloseLock != "local" {
		t.Fatalf("expected local close lock, got %q", cfg.Lifecycle.CloseLock)
	}
	if cfg.Lifecycle.RestoreLookback != 30*time.Minute {
		t.Fatalf("unexpected lookback %v", cfg.Lifecycle.RestoreLookback)
	}
	if cfg.Lifecycle.SweepInterval != 5*time.Minute {
		t.Fatalf("expected default sweep interval, got %v", cfg.Lifecycle.SweepInterval)
	}
	if cfg.Lifecycle.CloseLockRetry != 5*time.Second || cfg.Lifecycle.PublishTimeout != 2*time.Second {
		t.Fatalf("unexpected retry/publish defaults %v %v", cfg.Lifecycle.CloseLockRetry, cfg.Lifecycle.PublishTimeout)
	}
	if cfg.GraphQL.Path != "/graphql" {
		t.Fatalf("expected default graphql path, got %q", cfg.GraphQL.Path)
	}
	if len(cfg.Redis.LockAddresses) != 3 {
		t.Fatalf("expected 3 lock addresses, got %v", cfg.Redis.LockAddresses)
	}
	if AppConfig.Discord.Token != "file-token" {
		t.Fatalf("AppConfig not populated")
	}
}

func TestLoadConfigEnvOverridesToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.Discord.Token)
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	path := writeConfig(t, "server:\n  port: 1\ndiscord:\n  token: \"\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
