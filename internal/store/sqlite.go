// ABOUTME: SQLite implementation of TokenStore using modernc.org/sqlite
// ABOUTME: Creates the push_tokens schema on open and runs in WAL mode

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements TokenStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS push_tokens (
			token      TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddPushToken inserts token unless it is already stored.
func (s *SQLiteStore) AddPushToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_tokens (token, created_at) VALUES (?, ?) ON CONFLICT(token) DO NOTHING`,
		token, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting push token: %w", err)
	}
	return nil
}

// RemovePushToken deletes token.
func (s *SQLiteStore) RemovePushToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deleting push token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPushTokens returns all stored tokens, oldest first.
func (s *SQLiteStore) ListPushTokens(ctx context.Context) ([]*PushToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, created_at FROM push_tokens ORDER BY created_at, token`)
	if err != nil {
		return nil, fmt.Errorf("querying push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*PushToken
	for rows.Next() {
		var token, createdAt string
		if err := rows.Scan(&token, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning push token: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for push token: %w", err)
		}
		tokens = append(tokens, &PushToken{Token: token, CreatedAt: t})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push tokens: %w", err)
	}
	return tokens, nil
}

var _ TokenStore = (*SQLiteStore)(nil)
