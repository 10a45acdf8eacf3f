// CLAUDE:SUMMARY CLI entry point for contextmemo — note daemon (HTTP + MCP), MCP over stdio, one-shot annotate/export/list.
// Command contextmemo keeps short notes attached to text spans of web pages.
//
// Usage:
//
//	contextmemo -config contextmemo.yaml            # serve HTTP (API, /view, /mcp)
//	contextmemo -db notes.db -mcp stdio             # MCP over stdin/stdout
//	contextmemo -db notes.db -annotate <url>        # print the annotated page and exit
//	contextmemo -db notes.db -export <url|all>      # print notes as markdown and exit
//	contextmemo -db notes.db -list [-url <url>]     # print notes as JSON and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/contextmemo/memo"
)

type options struct {
	configPath string
	dbPath     string
	addr       string
	mcpMode    string
	annotate   string
	export     string
	list       bool
	pageURL    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to contextmemo.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database")
	flag.StringVar(&o.addr, "addr", "", "HTTP listen address")
	flag.StringVar(&o.mcpMode, "mcp", "", "serve MCP on a transport instead of HTTP: stdio")
	flag.StringVar(&o.annotate, "annotate", "", "print the page at this URL with its notes highlighted, then exit")
	flag.StringVar(&o.export, "export", "", "print the notes of this URL (or all) as markdown, then exit")
	flag.BoolVar(&o.list, "list", false, "print notes as JSON and exit")
	flag.StringVar(&o.pageURL, "url", "", "restrict -list to one page")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("contextmemo: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	svc, err := memo.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: annotate.
	if o.annotate != "" {
		out, reports, err := svc.Annotate(ctx, o.annotate, memo.AnnotateOptions{})
		if err != nil {
			return fmt.Errorf("annotate: %w", err)
		}
		for _, r := range reports {
			logger.Info("contextmemo: note", "note_id", r.NoteID, "status", r.Status, "markers", r.Markers)
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	// One-shot: export.
	if o.export != "" {
		pageURL := o.export
		if pageURL == "all" {
			pageURL = ""
		}
		md, err := svc.Export(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		_, err = fmt.Fprint(os.Stdout, md)
		return err
	}

	// One-shot: list.
	if o.list {
		notes, err := svc.ListNotes(ctx, memo.ListOptions{URL: o.pageURL})
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(notes)
	}

	switch o.mcpMode {
	case "":
	case "stdio":
		logger.Info("contextmemo: serving MCP on stdio", "db", cfg.DBPath)
		return svc.MCPServer().Run(ctx, &mcp.StdioTransport{})
	default:
		return fmt.Errorf("unknown -mcp transport %q", o.mcpMode)
	}

	// Daemon mode.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("contextmemo: listening", "addr", cfg.Addr, "db", cfg.DBPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("contextmemo: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func resolveConfig(o options) (*memo.Config, error) {
	cfg := &memo.Config{}
	if o.configPath != "" {
		loaded, err := memo.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	return cfg, nil
}
