package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var sqliteSchema string

// Fixed-width so lexical order in SQLite matches time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000-07:00"

// SQLiteStore persists entries in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, unavailable("init schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, label string, confidence float64, at time.Time) (Entry, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO prediction_history (predicted_disease, confidence, timestamp) VALUES (?, ?, ?)",
		label, confidence, at.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return Entry{}, unavailable("insert entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, unavailable("insert entry", err)
	}
	return Entry{ID: id, PredictedDisease: label, Confidence: confidence, Timestamp: at.UTC()}, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, predicted_disease, confidence, timestamp FROM prediction_history ORDER BY timestamp DESC, id DESC LIMIT ?",
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

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM prediction_history WHERE id = ?", id)
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
