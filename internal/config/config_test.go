package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"folio/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Sync.DefaultMaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.Sync.DefaultMaxRetries)
	}
	if cfg.Sync.ConflictPolicy != config.ConflictLastWriterWins {
		t.Fatalf("expected default conflict policy, got %q", cfg.Sync.ConflictPolicy)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "/tmp/folio-test-data"

[sync]
remote_url = "https://sync.example.com/api"
default_max_retries = 7
conflict_policy = "keep-local"

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/tmp/folio-test-data" {
		t.Fatalf("unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.Sync.DefaultMaxRetries != 7 {
		t.Fatalf("unexpected max retries: %d", cfg.Sync.DefaultMaxRetries)
	}
	if cfg.Sync.ConflictPolicy != config.ConflictKeepLocal {
		t.Fatalf("unexpected conflict policy: %q", cfg.Sync.ConflictPolicy)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty data dir", func(c *config.Config) { c.DataDir = "" }, "data_dir"},
		{"negative retries", func(c *config.Config) { c.Sync.DefaultMaxRetries = -1 }, "default_max_retries"},
		{"backoff order", func(c *config.Config) { c.Sync.BackoffMax = 1 }, "backoff_max"},
		{"bad remote", func(c *config.Config) { c.Sync.RemoteURL = "not a url" }, "remote_url"},
		{"bad policy", func(c *config.Config) { c.Sync.ConflictPolicy = "coin-flip" }, "conflict_policy"},
		{"zero poll", func(c *config.Config) { c.Workflow.QueuePollInterval = 0 }, "queue_poll_interval"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		cfg.DataDir = "/tmp/folio"
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when file exists")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}
