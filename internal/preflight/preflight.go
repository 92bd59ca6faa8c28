package preflight

import (
	"context"

	"folio/internal/config"
)

// Result reports the outcome of a single preflight check. Optional checks
// that fail degrade the daemon (sync waits) instead of blocking startup.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.DataDir),
		CheckDirectoryAccess("Log directory", cfg.LogDir),
		CheckFreeSpace(cfg.DataDir, cfg.Storage.MinFreeSpaceMiB),
	}

	// Remote reachability is advisory: the whole point of the queue is to
	// absorb offline periods.
	if cfg.Sync.RemoteURL != "" {
		results = append(results, CheckRemote(ctx, cfg.Sync.RemoteURL))
	}

	return results
}

// Blockers filters results down to failed non-optional checks.
func Blockers(results []Result) []Result {
	var blockers []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			blockers = append(blockers, result)
		}
	}
	return blockers
}
