package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode     = 5
	busyRetryAttempts  = 5
	busyRetryBackoff   = 10 * time.Millisecond
	busyRetryMaxDelay  = 200 * time.Millisecond
	schemaRecipesTable = `CREATE TABLE IF NOT EXISTS recipes (
	id TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`
)

// SQLiteStore persists recipes in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path. The parent directory is
// created when missing.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaRecipesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create recipes table: %w", err)
	}

	logger.Debug("opened recipe store", "path", path)
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces the value for id.
func (s *SQLiteStore) Save(ctx context.Context, id string, value []byte) error {
	if id == "" {
		return errors.New("recipe id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx,
		`INSERT INTO recipes (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		id, value, now)
}

// Get returns the value for id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	var body []byte
	err := s.retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT body FROM recipes WHERE id = ?`, id).Scan(&body)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe %s: %w", id, err)
	}
	return body, nil
}

// Delete removes id. Deleting a missing id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM recipes WHERE id = ?`, id)
}

// List returns the stored ids in sorted order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.retryOnBusy(ctx, func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM recipes ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// retryOnBusy retries op while SQLite reports the database as locked.
func (s *SQLiteStore) retryOnBusy(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(busyRetryAttempts),
		retry.Delay(busyRetryBackoff),
		retry.MaxDelay(busyRetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isSQLiteBusy),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("sqlite busy, retrying", "attempt", n+1, "error", err)
		}),
	)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
