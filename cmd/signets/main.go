// Command signets ingests bookmark trees and serves full-text search over
// the pages they point to.
//
// Usage:
//
//	signets                          # HTTP API on $PORT (default 8087)
//	signets -config signets.yaml     # with a config file
//	MCP_TRANSPORT=stdio signets      # MCP tools on stdin/stdout
//
// Environment (a .env file is loaded when present): PORT, SIGNETS_DB,
// SIGNETS_CONFIG, ARCHIVE_DIR, FETCH_CONCURRENCY, REBUILD_ON_SEARCH,
// MCP_TRANSPORT, LOG_LEVEL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/signets/signets"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", env("SIGNETS_CONFIG", ""), "path to signets.yaml config file")
	flag.Parse()

	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("signets: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := resolveConfig(configPath)
	if err != nil {
		return err
	}

	dbPath := env("SIGNETS_DB", "data/signets.db")
	db, err := signets.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := signets.New(db, cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := svc.LoadIndex(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "signets",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		logger.Info("signets: MCP on stdio", "db", dbPath)
		return mcpSrv.Run(ctx, &mcp.StdioTransport{})
	}

	port := env("PORT", "8087")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
		// Ingest answers once every page is fetched.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("signets: server starting", "port", port, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("signets: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("signets: shutdown", "error", err)
	}
	logger.Info("signets: stopped")
	return nil
}

// resolveConfig loads the config file, if any, then applies environment
// overrides.
func resolveConfig(configPath string) (*signets.Config, error) {
	cfg := &signets.Config{}
	if configPath != "" {
		var err error
		if cfg, err = signets.LoadConfigFile(configPath); err != nil {
			return nil, err
		}
	}
	if v := env("ARCHIVE_DIR", ""); v != "" {
		cfg.ArchiveDir = v
	}
	if v := env("FETCH_CONCURRENCY", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("FETCH_CONCURRENCY: invalid value %q", v)
		}
		cfg.Scheduler.Concurrency = n
	}
	if v := env("REBUILD_ON_SEARCH", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("REBUILD_ON_SEARCH: %w", err)
		}
		cfg.RebuildOnSearch = b
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
