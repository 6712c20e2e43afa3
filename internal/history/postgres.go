package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS prediction_history (
		id BIGSERIAL PRIMARY KEY,
		predicted_disease VARCHAR(100) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prediction_history_timestamp
		ON prediction_history (timestamp DESC, id DESC);
`

// PostgresStore persists entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn without touching the server; call Ping and
// Migrate before use.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the history table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return unavailable("init schema", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, label string, confidence float64, at time.Time) (Entry, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO prediction_history (predicted_disease, confidence, timestamp) VALUES ($1, $2, $3) RETURNING id",
		label, confidence, at.UTC(),
	).Scan(&id)
	if err != nil {
		return Entry{}, unavailable("insert entry", err)
	}
	return Entry{ID: id, PredictedDisease: label, Confidence: confidence, Timestamp: at.UTC()}, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, predicted_disease, confidence, timestamp FROM prediction_history ORDER BY timestamp DESC, id DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, unavailable("list entries", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PredictedDisease, &e.Confidence, &e.Timestamp); err != nil {
			return nil, unavailable("scan entry", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entries", err)
	}
	return entries, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM prediction_history WHERE id = $1", id)
	if err != nil {
		return unavailable("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete entry", err)
	}
	if n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
