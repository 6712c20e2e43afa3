// Package history keeps the ledger of past predictions.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultListLimit caps ListRecent when no limit is given.
const DefaultListLimit = 100

var (
	ErrNotFound           = errors.New("history entry not found")
	ErrStorageUnavailable = errors.New("history storage unavailable")
	ErrInvalidEntry       = errors.New("invalid history entry")
)

// NotFoundError names the id a delete could not find.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Entry ID %d not found.", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Entry is one persisted prediction.
type Entry struct {
	ID               int64     `json:"id"`
	PredictedDisease string    `json:"predictedDisease"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// Store is the backing storage for a Ledger. Insert must assign ids
// atomically and in strictly increasing order; Delete returns a
// *NotFoundError when no row matches.
type Store interface {
	Insert(ctx context.Context, label string, confidence float64, at time.Time) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
	Close() error
}

// Ledger is the append-and-delete record of predictions.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now as the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the ledger's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger.With().Str("component", "history").Logger() }
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry for a successful prediction.
func (l *Ledger) Record(ctx context.Context, label string, confidence float64) (Entry, error) {
	if strings.TrimSpace(label) == "" {
		return Entry{}, fmt.Errorf("%w: empty label", ErrInvalidEntry)
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return Entry{}, fmt.Errorf("%w: confidence is not finite", ErrInvalidEntry)
	}

	entry, err := l.store.Insert(ctx, label, roundCents(confidence), l.now().UTC())
	if err != nil {
		l.logger.Error().Err(err).Str("label", label).Msg("record prediction")
		return Entry{}, err
	}
	l.logger.Debug().Int64("id", entry.ID).Str("label", label).Msg("prediction recorded")
	return entry, nil
}

// ListRecent returns up to limit entries, newest first. A non-positive
// limit means DefaultListLimit.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	entries, err := l.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// DeleteByID removes the entry with the given id.
func (l *Ledger) DeleteByID(ctx context.Context, id int64) error {
	if err := l.store.Delete(ctx, id); err != nil {
		return err
	}
	l.logger.Info().Int64("id", id).Msg("history entry deleted")
	return nil
}

// Close releases the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// unavailable wraps a driver error so callers can classify it.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
