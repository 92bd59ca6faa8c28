package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Sync contains configuration for the remote sync collaborator.
type Sync struct {
	RemoteURL         string `toml:"remote_url"`
	RequestTimeout    int    `toml:"request_timeout"`
	DefaultMaxRetries int    `toml:"default_max_retries"`
	BackoffInitial    int    `toml:"backoff_initial"`
	BackoffMax        int    `toml:"backoff_max"`
	ConflictPolicy    string `toml:"conflict_policy"`
}

// Workflow contains configuration for processor timing and intervals.
type Workflow struct {
	QueuePollInterval      int `toml:"queue_poll_interval"`
	ErrorRetryInterval     int `toml:"error_retry_interval"`
	StaleProcessingTimeout int `toml:"stale_processing_timeout"`
}

// Storage contains thresholds for local storage accounting.
type Storage struct {
	MinFreeSpaceMiB int `toml:"min_free_space_mib"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration for the folio daemon and CLI.
type Config struct {
	Paths    `toml:"paths"`
	Sync     Sync     `toml:"sync"`
	Workflow Workflow `toml:"workflow"`
	Storage  Storage  `toml:"storage"`
	Logging  Logging  `toml:"logging"`
}

// DefaultPath returns the canonical config file location.
func DefaultPath() string {
	return expandPath("~/.config/folio/config.toml")
}

// Load reads configuration from path, falling back to DefaultPath when path
// is empty. A missing file yields defaults rather than an error; the resolved
// path is returned so callers can report where configuration came from.
func Load(path string) (*Config, string, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultPath()
	} else {
		resolved = expandPath(resolved)
	}

	cfg := Default()
	raw, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return &cfg, resolved, nil
		}
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

// WriteSample writes the annotated sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	resolved := expandPath(path)
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file already exists at %s", resolved)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DocumentsDBPath returns the location of the document store database.
func (c *Config) DocumentsDBPath() string {
	return filepath.Join(c.DataDir, "documents.db")
}

// QueueDBPath returns the location of the operation queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "foliod.lock")
}

func (c *Config) normalize() {
	c.DataDir = expandPath(c.DataDir)
	c.LogDir = expandPath(c.LogDir)
	c.Sync.ConflictPolicy = strings.ToLower(strings.TrimSpace(c.Sync.ConflictPolicy))
	if c.Sync.ConflictPolicy == "" {
		c.Sync.ConflictPolicy = ConflictLastWriterWins
	}
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return trimmed
		}
		if trimmed == "~" {
			return home
		}
		return filepath.Join(home, trimmed[2:])
	}
	return trimmed
}
