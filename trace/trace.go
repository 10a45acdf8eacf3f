// Package trace provides SQL query logging for modernc.org/sqlite.
//
// It registers a "sqlite-trace" driver that wraps the standard "sqlite"
// driver and logs every Exec and Query, and every statement that fails to
// prepare, through slog:
//
//	import _ "github.com/hazyhaar/contextmemo/trace"
//
//	db, _ := dbopen.Open("notes.db", dbopen.WithDriver(trace.DriverName))
//
// Levels adapt to the outcome: Debug normally, Warn past the slow threshold,
// Error on failure. Trace and tab ids are read from the context.
package trace

import (
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// DefaultSlow is the duration past which a statement is logged at Warn.
const DefaultSlow = 100 * time.Millisecond

var (
	logger atomic.Pointer[slog.Logger]
	slow   atomic.Int64
)

// SetLogger sets the logger used by the driver. Nil restores slog.Default.
func SetLogger(l *slog.Logger) { logger.Store(l) }

// SetSlowThreshold sets the Warn threshold. Zero or less restores DefaultSlow.
func SetSlowThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultSlow
	}
	slow.Store(int64(d))
}

func getLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func init() {
	slow.Store(int64(DefaultSlow))
	sql.Register(DriverName, &TracingDriver{Driver: &sqlite.Driver{}})
}
