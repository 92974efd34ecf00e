package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/aggregator"
	"github.com/use-agent/carscout/api"
	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("carscout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"concurrency", cfg.Scraper.Concurrency,
	)

	// ── 3. Resolve sources ──────────────────────────────────────────
	sources, err := adapter.Select(cfg.Scraper.Sources)
	if err != nil {
		slog.Error("invalid source selection", "error", err)
		os.Exit(1)
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	slog.Info("sources enabled", "sources", names)

	// ── 4. Fetcher and aggregator ───────────────────────────────────
	// No browser is started here; every fetch launches its own.
	fetcher := scraper.NewFetcher(cfg.Browser, cfg.Scraper, slog.Default())
	agg := aggregator.New(fetcher,
		aggregator.WithLogger(slog.Default()),
		aggregator.WithConcurrency(cfg.Scraper.Concurrency),
		aggregator.WithSourceTimeout(cfg.Scraper.SourceTimeout),
	)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(agg, fetcher, sources, cfg, slog.Default(), time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// A search can hold browsers for a full source timeout.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.SourceTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err, "active_fetches", fetcher.Active())
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("carscout stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
