package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/config"
	"folio/internal/services"
)

// Store manages document persistence backed by SQLite. Instances are
// constructed explicitly and carry their own lifecycle so isolated stores can
// coexist (tests, multiple workers).
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the document database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DocumentsDBPath())
}

// OpenPath opens a document store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file backing this store.
func (s *Store) Path() string {
	return s.path
}

// ClearAll wipes all documents, annotations, and history. Storage stats are
// derived, so they read zero immediately afterwards.
func (s *Store) ClearAll(ctx context.Context) error {
	// Annotation and history rows fall with their documents via FK cascade.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "clear", "", err)
	}
	return nil
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

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
