// internal/store/history.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// History records which posts have already been liked so repeated runs do
// not hammer the same posts. Failures here are never fatal to a run; the
// engagement loop treats the store as best effort.
type History struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS liked_posts (
	url      TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	liked_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_liked_posts_username ON liked_posts (username);
`

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string, logger *zap.Logger) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// The engagement loop is single threaded; one connection avoids
	// SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &History{db: db, logger: logger.Named("history")}, nil
}

// Seen reports whether the post URL has been liked in a previous run.
func (h *History) Seen(ctx context.Context, url string) (bool, error) {
	var one int
	err := h.db.QueryRowContext(ctx,
		`SELECT 1 FROM liked_posts WHERE url = ?`, url,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return true, nil
}

// Record stores a liked post. Recording the same URL twice is a no-op.
func (h *History) Record(ctx context.Context, url, username string) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO liked_posts (url, username, liked_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		url, username, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record liked post: %w", err)
	}
	return nil
}

// CountForUser returns how many posts of the given profile are on record.
func (h *History) CountForUser(ctx context.Context, username string) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM liked_posts WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}
