package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists sealed mappings in an embedded SQLite database so
// the reverse map survives process restarts without an external service.
type SQLiteBackend struct {
	db *sql.DB
}

const vaultSchema = `
CREATE TABLE IF NOT EXISTS reverse_map (
	token  TEXT PRIMARY KEY,
	sealed BLOB NOT NULL
);
`

// NewSQLiteBackend opens (creating if needed) the vault database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vault db: %w", err)
	}
	// modernc sqlite serializes writes itself but a single connection avoids
	// SQLITE_BUSY on concurrent puts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(vaultSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vault schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, token string, sealed []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO reverse_map (token, sealed) VALUES (?, ?)
		 ON CONFLICT(token) DO UPDATE SET sealed = excluded.sealed`,
		token, sealed)
	if err != nil {
		return fmt.Errorf("vault put: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, token string) ([]byte, error) {
	var sealed []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT sealed FROM reverse_map WHERE token = ?`, token).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault get: %w", err)
	}
	return sealed, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
