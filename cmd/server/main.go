// Package main provides the entry point for the content pipeline HTTP gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsroom/content-pipeline/internal/apps"
	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/database"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/repository"
	httpserver "github.com/newsroom/content-pipeline/internal/server/http"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

// streamWriteTimeout keeps progress streams open longer than plain requests.
const streamWriteTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = observability.WithComponent(logger, "server")
	logger.Info().Msg("content-pipeline gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	profiles, err := apps.Load(cfg.Apps.Path)
	if err != nil {
		return fmt.Errorf("load app profiles: %w", err)
	}

	metrics := observability.NewMetrics("content_pipeline")

	outboxRepo := repository.NewPgOutboxRepository(db, cfg.Outbox.Table)
	articleRepo := repository.NewPgArticleRepository(db, outboxRepo, logger)
	runRepo := repository.NewPgRunRepository(db)

	clientCfg := temporal.ClientConfigFrom(cfg.Temporal)
	clientCfg.Logger = observability.NewTemporalLogger(logger)
	clientCfg.Metrics = metrics
	temporalClient, err := temporal.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	pipelineClient := temporal.NewPipelineClient(temporalClient, clientCfg, profiles, cfg.Pipeline.Settings())
	defer pipelineClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Str("task_queue", cfg.Temporal.TaskQueue).
		Msg("temporal client connected")

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    streamWriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, httpserver.Deps{
		Pipeline: pipelineClient,
		Articles: articleRepo,
		Runs:     runRepo,
		DB:       db,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Strs("apps", profiles.Names()).
		Msg("content-pipeline gateway is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("content-pipeline gateway stopped")
	return nil
}
