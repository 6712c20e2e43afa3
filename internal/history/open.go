package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

var errClosed = errors.New("store closed")

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and locates the backing store.
type Config struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ListLimit      int           `yaml:"list_limit"`
}

// Open connects to the configured store, retrying the first ping with
// exponential backoff until ConnectTimeout elapses.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		if dir := sqliteDir(cfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		store, err = NewSQLiteStore(cfg.DSN)
	case DriverPostgres:
		store, err = NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	log := logger.With().Str("component", "history").Str("driver", cfg.Driver).Logger()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 30 * time.Second
	}

	operation := func() error {
		if err := store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("history store not reachable, retrying")
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	if pg, ok := store.(*PostgresStore); ok {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}

	log.Info().Msg("history store ready")
	return store, nil
}

// sqliteDir returns the directory holding the database file named by dsn, or
// "" when there is nothing to create. A DSN may be a plain path or a
// file: URI with query parameters.
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}
