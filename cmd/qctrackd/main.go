// Command qctrackd serves the quality-control tracker: product catalog, lot
// pipeline, the specification-driven result grid, XLSX export, and result
// document storage.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	QCTRACK_ADDR            listen address (default :8080)
//	QCTRACK_STORE_DRIVER    memory|sqlite|postgres (default sqlite)
//	QCTRACK_SQLITE_PATH     sqlite database file (default qctrack.db)
//	QCTRACK_POSTGRES_DSN    postgres connection string
//	QCTRACK_BLOB_*          document storage, see internal/blob
//	QCTRACK_LOG_LEVEL       debug|info|warn|error (default info)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qctrack/internal/adapters/gridapi"
	"qctrack/internal/blob"
	"qctrack/internal/core"
	"qctrack/internal/infra/persistence/memory"
	"qctrack/internal/infra/persistence/postgres"
	"qctrack/internal/infra/persistence/sqlite"
	"qctrack/pkg/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "qctrackd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("QCTRACK_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := core.NewDefaultRulesEngine()
	store, closeStore, err := openStore(engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	documents, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := core.NewPrometheusMetricsRecorder(registry)

	svc := core.NewService(store,
		core.WithLogger(core.NewSlogLogger(logger)),
		core.WithMetricsRecorder(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", gridapi.NewHandler(svc, documents))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("QCTRACK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "store", os.Getenv("QCTRACK_STORE_DRIVER"))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openStore(engine *domain.RulesEngine) (domain.PersistentStore, func(), error) {
	driver := strings.ToLower(os.Getenv("QCTRACK_STORE_DRIVER"))
	switch driver {
	case "memory":
		return memory.NewStore(engine), func() {}, nil
	case "postgres":
		store, err := postgres.NewStore(os.Getenv("QCTRACK_POSTGRES_DSN"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "sqlite", "":
		store, err := sqlite.NewStore(os.Getenv("QCTRACK_SQLITE_PATH"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func logLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
