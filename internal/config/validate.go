package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: paths.data_dir must not be empty")
	}
	if c.Sync.DefaultMaxRetries < 0 {
		return fmt.Errorf("config: sync.default_max_retries must not be negative")
	}
	if c.Sync.BackoffInitial <= 0 {
		return fmt.Errorf("config: sync.backoff_initial must be positive")
	}
	if c.Sync.BackoffMax < c.Sync.BackoffInitial {
		return fmt.Errorf("config: sync.backoff_max must be >= sync.backoff_initial")
	}
	if remote := strings.TrimSpace(c.Sync.RemoteURL); remote != "" {
		parsed, err := url.Parse(remote)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: sync.remote_url %q is not a valid URL", remote)
		}
	}
	switch c.Sync.ConflictPolicy {
	case ConflictLastWriterWins, ConflictKeepLocal:
	default:
		return fmt.Errorf("config: sync.conflict_policy %q is not recognized", c.Sync.ConflictPolicy)
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return fmt.Errorf("config: workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return fmt.Errorf("config: workflow.error_retry_interval must be positive")
	}
	if c.Workflow.StaleProcessingTimeout <= 0 {
		return fmt.Errorf("config: workflow.stale_processing_timeout must be positive")
	}
	return nil
}
