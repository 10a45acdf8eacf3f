// Package dbopen opens the contextmemo SQLite database. Pragmas travel in
// the DSN as _pragma parameters, so the modernc driver applies them to every
// connection of the pool, not only to the first one.
//
// Pragmas:
//
//	busy_timeout = 10s      (WithBusyTimeout)
//	foreign_keys = ON
//	journal_mode = WAL
//	synchronous  = NORMAL   (WithSynchronous)
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("contextmemo.db", dbopen.WithSchema(store.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type config struct {
	driver      string
	busyTimeout time.Duration
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite". The
// driver must understand modernc's _pragma DSN parameters.
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets how long a connection waits on a locked database.
// Zero keeps the default of 10s.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithSynchronous sets PRAGMA synchronous: off, normal, full or extra.
// Empty keeps the default.
func WithSynchronous(mode string) Option {
	return func(c *config) {
		if mode != "" {
			c.synchronous = mode
		}
	}
}

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues SQL to execute once the database is open.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

var synchronousModes = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}

// DSN returns the data source name Open hands to the driver.
func DSN(path string, opts ...Option) (string, error) {
	cfg, err := build(opts)
	if err != nil {
		return "", err
	}
	return dsn(path, &cfg)
}

func build(opts []Option) (config, error) {
	cfg := config{driver: "sqlite", busyTimeout: 10 * time.Second, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.synchronous = strings.ToUpper(strings.TrimSpace(cfg.synchronous))
	if !synchronousModes[cfg.synchronous] {
		return cfg, fmt.Errorf("dbopen: unknown synchronous mode %q", cfg.synchronous)
	}
	return cfg, nil
}

func dsn(path string, cfg *config) (string, error) {
	if strings.ContainsRune(path, '?') {
		return "", fmt.Errorf("dbopen: path %q must not carry a query", path)
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous("+cfg.synchronous+")")
	return path + "?" + q.Encode(), nil
}

// Open opens an SQLite database at path, runs the queued schemas, then
// pings it. The caller must blank-import the driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg, err := build(opts)
	if err != nil {
		return nil, err
	}
	name, err := dsn(path, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, name)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for testing. Every
// connection to ":memory:" is a separate database, so the pool is limited to
// one connection. The database is closed on test cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
