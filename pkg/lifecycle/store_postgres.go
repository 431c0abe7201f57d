package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists records and datasets as JSONB documents keyed by id.
// Per-record serialization is a SELECT ... FOR UPDATE inside the transition
// transaction; concurrent transitions on one record queue on the row lock.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS training_records (
	id     TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	body   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS training_records_status_idx ON training_records (status);

CREATE TABLE IF NOT EXISTS datasets (
	id   TEXT PRIMARY KEY,
	body JSONB NOT NULL
);
`

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init lifecycle schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection without touching the
// schema. Tests use this with a mocked driver.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateRecord(ctx context.Context, record *TrainingRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO training_records (id, status, body) VALUES ($1, $2, $3)`,
		record.ID, string(record.Status), body)
	if err != nil {
		return fmt.Errorf("create record %s: %w", record.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetRecord(ctx context.Context, id string) (*TrainingRecord, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT body FROM training_records WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	var record TrainingRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &record, nil
}

func (p *PostgresStore) Transition(ctx context.Context, id string, fn func(*TrainingRecord) error) (*TrainingRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM training_records WHERE id = $1 FOR UPDATE`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock record %s: %w", id, err)
	}

	var record TrainingRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	if err := fn(&record); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&record)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE training_records SET status = $2, body = $3 WHERE id = $1`,
		id, string(record.Status), updated); err != nil {
		return nil, fmt.Errorf("update record %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition %s: %w", id, err)
	}
	return &record, nil
}

func (p *PostgresStore) ListRecords(ctx context.Context, status Status) ([]*TrainingRecord, error) {
	query := `SELECT body FROM training_records`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*TrainingRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var record TrainingRecord
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateDataset(ctx context.Context, dataset *Dataset) error {
	body, err := json.Marshal(dataset)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO datasets (id, body) VALUES ($1, $2)`, dataset.ID, body); err != nil {
		return fmt.Errorf("create dataset %s: %w", dataset.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT body FROM datasets WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	var dataset Dataset
	if err := json.Unmarshal(body, &dataset); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", id, err)
	}
	return &dataset, nil
}

func (p *PostgresStore) UpdateDataset(ctx context.Context, id string, fn func(*Dataset) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dataset update: %w", err)
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM datasets WHERE id = $1 FOR UPDATE`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lock dataset %s: %w", id, err)
	}

	var dataset Dataset
	if err := json.Unmarshal(body, &dataset); err != nil {
		return fmt.Errorf("decode dataset %s: %w", id, err)
	}
	if err := fn(&dataset); err != nil {
		return err
	}
	updated, err := json.Marshal(&dataset)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE datasets SET body = $2 WHERE id = $1`, id, updated); err != nil {
		return fmt.Errorf("update dataset %s: %w", id, err)
	}
	return tx.Commit()
}

func (p *PostgresStore) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT body FROM datasets`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []*Dataset
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var dataset Dataset
		if err := json.Unmarshal(body, &dataset); err != nil {
			return nil, err
		}
		out = append(out, &dataset)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
