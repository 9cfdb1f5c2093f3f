package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database, so conversation
// history survives server restarts. Retention is enforced at read time: only
// the newest maxExchanges rows per session are returned, and older rows are
// pruned opportunistically on write.
type SQLiteStore struct {
	db           *sql.DB
	maxExchanges int
}

var _ Store = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the session history database.
// It resolves to ~/.studyhall/sessions.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".studyhall")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("session: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
// maxExchanges <= 0 uses DefaultMaxExchanges.
func OpenSQLite(path string, maxExchanges int) (*SQLiteStore, error) {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	// WAL mode improves concurrent read performance and is safe for
	// single-host use. modernc's driver takes pragmas in _pragma=name(value)
	// form, applied to every new connection.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, maxExchanges: maxExchanges}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS exchanges (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session    TEXT    NOT NULL,
    question   TEXT    NOT NULL,
    answer     TEXT    NOT NULL,
    created_at INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_exchanges_session_created
    ON exchanges (session, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// NewSession allocates a fresh session ID. No row is written until the first
// exchange; an empty session is indistinguishable from an unknown one.
func (s *SQLiteStore) NewSession(_ context.Context) (string, error) {
	return newSessionID(), nil
}

// AddExchange records one exchange and prunes rows that fell out of the
// retention window.
func (s *SQLiteStore) AddExchange(ctx context.Context, sessionID, question, answer string) error {
	const insert = `INSERT INTO exchanges (session, question, answer, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, sessionID, question, answer, time.Now().Unix()); err != nil {
		return fmt.Errorf("session: add exchange: %w", err)
	}

	const prune = `
DELETE FROM exchanges
WHERE  session = ?
AND    id NOT IN (
    SELECT id FROM exchanges
    WHERE  session = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
)`
	if _, err := s.db.ExecContext(ctx, prune, sessionID, sessionID, s.maxExchanges); err != nil {
		return fmt.Errorf("session: prune: %w", err)
	}
	return nil
}

// Recent returns the retained exchanges for the session, oldest-first. Uses
// a subquery to select the tail then re-order for prompt injection.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string) ([]Exchange, error) {
	const q = `
SELECT question, answer, created_at FROM (
    SELECT id, question, answer, created_at
    FROM   exchanges
    WHERE  session = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, s.maxExchanges)
	if err != nil {
		return nil, fmt.Errorf("session: recent: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		var ts int64
		if err := rows.Scan(&ex.Question, &ex.Answer, &ts); err != nil {
			return nil, fmt.Errorf("session: recent scan: %w", err)
		}
		ex.CreatedAt = time.Unix(ts, 0)
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: recent rows: %w", err)
	}
	return exchanges, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}
