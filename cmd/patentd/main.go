// Patentd serves multi-tenant retrieval over persisted patent chunk indexes.
//
// On startup it loads every configured tenant's index in parallel, then
// answers searches over HTTP. A tenant whose index fails to load is reported
// unavailable without taking the others down.
//
// Usage:
//
//	# Start with defaults
//	patentd
//
//	# Start with a config file; env vars override file values
//	patentd -config patentd.yaml
//	PATENTD_SERVER_PORT=9000 patentd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/config"
	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/embeddings"
	"github.com/fyrsmithlabs/patentd/internal/httpapi"
	"github.com/fyrsmithlabs/patentd/internal/logging"
	"github.com/fyrsmithlabs/patentd/internal/registry"
	"github.com/fyrsmithlabs/patentd/internal/retrieval"
	"github.com/fyrsmithlabs/patentd/internal/search"
	"github.com/fyrsmithlabs/patentd/internal/sourcecache"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("patentd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("patentd: %v", err)
	}
}

// run wires the daemon and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info(ctx, "starting patentd",
		zap.String("version", version),
		zap.Int("tenants", len(cfg.Corpus.Tenants)),
		zap.String("corpus_dir", cfg.Corpus.Dir),
	)

	embedder, err := embeddings.NewTEIClient(embeddings.TEIConfig{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	store := corpus.NewStore(cfg.Corpus.Dir, embedder.Dimension(), logger)
	reg := registry.New(logger)
	available := reg.LoadAll(ctx, store, cfg.Corpus.Tenants)
	logger.Info(ctx, "tenant indexes loaded",
		zap.Int("available", available),
		zap.Int("configured", len(cfg.Corpus.Tenants)),
	)
	if available == 0 && len(cfg.Corpus.Tenants) > 0 {
		logger.Warn(ctx, "no tenant is available; every search will return TenantNotFound")
	}

	engine := search.NewEngine(search.Config{
		OversampleFactor: cfg.Search.OversampleFactor,
		MinOversample:    cfg.Search.MinOversample,
	}, logger)
	sources := sourcecache.New(cfg.Cache.SourceTTL.Duration())
	service := retrieval.NewService(reg, embedder, engine, sources, logger)

	server, err := httpapi.NewServer(service, reg, sources, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info(context.Background(), "shutdown complete")
	return nil
}
