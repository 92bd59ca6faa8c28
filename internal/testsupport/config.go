package testsupport

import (
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRemoteURL points the test config at a remote endpoint, typically an
// httptest server.
func WithRemoteURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.RemoteURL = url
	}
}

// WithConflictPolicy overrides the conflict resolution policy.
func WithConflictPolicy(policy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.ConflictPolicy = policy
	}
}

// WithMaxRetries overrides the default retry budget for enqueued items.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.DefaultMaxRetries = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.DataDir)
}
