package opqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	hub  *Hub

	defaultMaxRetries int
	backoffInitial    time.Duration
	backoffMax        time.Duration

	// now is replaceable in tests to exercise backoff eligibility.
	now func() time.Time
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath(),
		cfg.Sync.DefaultMaxRetries,
		time.Duration(cfg.Sync.BackoffInitial)*time.Second,
		time.Duration(cfg.Sync.BackoffMax)*time.Second,
	)
}

// OpenPath opens a queue store at an explicit database path with explicit
// retry and backoff parameters.
func OpenPath(dbPath string, defaultMaxRetries int, backoffInitial, backoffMax time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if defaultMaxRetries < 0 {
		defaultMaxRetries = 0
	}
	if backoffInitial <= 0 {
		backoffInitial = 2 * time.Second
	}
	if backoffMax < backoffInitial {
		backoffMax = backoffInitial
	}

	store := &Store{
		db:                db,
		path:              dbPath,
		hub:               NewHub(),
		defaultMaxRetries: defaultMaxRetries,
		backoffInitial:    backoffInitial,
		backoffMax:        backoffMax,
		now:               func() time.Time { return time.Now().UTC() },
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the event hub and the underlying database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file backing this store.
func (s *Store) Path() string {
	return s.path
}

// Events exposes the status-transition hub for subscribers.
func (s *Store) Events() *Hub {
	return s.hub
}

// SetNow overrides the store's clock, letting tests fast-forward backoff
// deadlines.
func (s *Store) SetNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// backoffDelay computes the delay before attempt n (1-based) becomes
// eligible again: exponential from the initial delay, capped.
func (s *Store) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.backoffInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.backoffMax {
			return s.backoffMax
		}
	}
	if delay > s.backoffMax {
		return s.backoffMax
	}
	return delay
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
