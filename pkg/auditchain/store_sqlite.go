package auditchain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the chain in an embedded SQLite database. The seq
// primary key doubles as the append-only guarantee: a second insert at the
// same sequence fails instead of overwriting.
type SQLiteStore struct {
	db *sql.DB
}

const chainSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq       INTEGER PRIMARY KEY,
	self_hash TEXT NOT NULL,
	body      BLOB NOT NULL
);
`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chain db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(chainSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init chain schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (seq, self_hash, body) VALUES (?, ?, ?)`,
		event.Seq, event.SelfHash, body)
	if err != nil {
		return fmt.Errorf("append event %d: %w", event.Seq, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, seq uint64) (*Event, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM audit_events WHERE seq = ?`, seq).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", seq, err)
	}
	return decodeEvent(body)
}

func (s *SQLiteStore) Range(ctx context.Context, from, to uint64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM audit_events WHERE seq BETWEEN ? AND ? ORDER BY seq`, from, to)
	if err != nil {
		return nil, fmt.Errorf("range events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		event, err := decodeEvent(body)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Last(ctx context.Context) (*Event, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last event: %w", err)
	}
	return decodeEvent(body)
}

func (s *SQLiteStore) Len(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodeEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &event, nil
}
