package config

// Conflict resolution policies applied when the remote version moved past the
// base version a queued sync was computed against.
const (
	ConflictLastWriterWins = "last-writer-wins"
	ConflictKeepLocal      = "keep-local"
)

const (
	defaultDataDir                = "~/.local/share/folio"
	defaultLogDir                 = "~/.local/share/folio/logs"
	defaultAPIBind                = "127.0.0.1:7643"
	defaultRequestTimeout         = 30
	defaultMaxRetries             = 3
	defaultBackoffInitial         = 2
	defaultBackoffMax             = 300
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultStaleProcessingTimeout = 300
	defaultMinFreeSpaceMiB        = 256
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Sync: Sync{
			RequestTimeout:    defaultRequestTimeout,
			DefaultMaxRetries: defaultMaxRetries,
			BackoffInitial:    defaultBackoffInitial,
			BackoffMax:        defaultBackoffMax,
			ConflictPolicy:    ConflictLastWriterWins,
		},
		Workflow: Workflow{
			QueuePollInterval:      defaultQueuePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			StaleProcessingTimeout: defaultStaleProcessingTimeout,
		},
		Storage: Storage{
			MinFreeSpaceMiB: defaultMinFreeSpaceMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
