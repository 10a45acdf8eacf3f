package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/contextmemo/kit"
)

// TracingDriver wraps a driver and logs every statement run on its
// connections.
type TracingDriver struct {
	driver.Driver
}

func (d *TracingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn}, nil
}

type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext logs statements the driver refuses to prepare; with
// sqlite that covers syntax errors and unknown tables.
func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	start := time.Now()
	var stmt driver.Stmt
	var err error
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		record(ctx, "Prepare", query, time.Since(start), err)
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var result driver.Result
	var err error
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		result, err = ec.ExecContext(ctx, args)
	} else {
		result, err = s.Stmt.Exec(namedToValues(args))
	}
	s.record(ctx, "Exec", time.Since(start), err)
	return result, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var rows driver.Rows
	var err error
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(namedToValues(args))
	}
	s.record(ctx, "Query", time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	result, err := s.Stmt.Exec(args)
	s.record(context.Background(), "Exec", time.Since(start), err)
	return result, err
}

func (s *tracingStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.Stmt.Query(args)
	s.record(context.Background(), "Query", time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) record(ctx context.Context, op string, d time.Duration, err error) {
	record(ctx, op, s.query, d, err)
}

func record(ctx context.Context, op, query string, d time.Duration, err error) {
	// Pragmas are only worth a line when they fail or stall.
	if err == nil && d < time.Duration(slow.Load()) && strings.HasPrefix(query, "PRAGMA ") {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d > time.Duration(slow.Load()):
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", compact(query)),
		slog.Duration("duration", d),
	}
	if id := kit.GetTraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if id := kit.GetTabID(ctx); id != "" {
		attrs = append(attrs, slog.String("tab", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	getLogger().LogAttrs(ctx, level, "sql: statement", attrs...)
}

// compact folds the whitespace of a multi-line statement.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func namedToValues(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}
