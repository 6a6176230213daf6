// Package main provides the entry point for the content pipeline Temporal worker.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/newsroom/content-pipeline/internal/apps"
	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/database"
	"github.com/newsroom/content-pipeline/internal/graph"
	"github.com/newsroom/content-pipeline/internal/imagegen"
	"github.com/newsroom/content-pipeline/internal/intake"
	"github.com/newsroom/content-pipeline/internal/llm"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/outbox"
	"github.com/newsroom/content-pipeline/internal/repository"
	"github.com/newsroom/content-pipeline/internal/research"
	"github.com/newsroom/content-pipeline/internal/temporal"
	"github.com/newsroom/content-pipeline/internal/temporal/activities"
	"github.com/newsroom/content-pipeline/internal/temporal/workflows"
)

const serviceName = "content-pipeline"

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
	logger = observability.WithComponent(logger, "worker")
	logger.Info().Msg("content-pipeline worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	profiles, err := apps.Load(cfg.Apps.Path)
	if err != nil {
		return fmt.Errorf("load app profiles: %w", err)
	}
	logger.Info().Strs("apps", profiles.Names()).Msg("app profiles loaded")

	metrics := observability.NewMetrics("content_pipeline")

	outboxRepo := repository.NewPgOutboxRepository(db, cfg.Outbox.Table)
	articleRepo := repository.NewPgArticleRepository(db, outboxRepo, logger)
	runRepo := repository.NewPgRunRepository(db)

	emitter := outbox.NewEmitter(outbox.EmitterConfig{ServiceName: serviceName})
	publisher := outbox.NewPublisher(emitter, outboxRepo)

	completer, err := llm.NewCompleter(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey: cfg.LLM.Anthropic.APIKey,
			Model:  cfg.LLM.Anthropic.Model,
		},
	})
	if err != nil {
		return fmt.Errorf("create LLM completer: %w", err)
	}
	generator := llm.NewGenerator(completer, metrics)
	logger.Info().Str("provider", cfg.LLM.Provider).Msg("LLM generator created")

	// A nil syncer makes SyncToGraph a no-op.
	var syncer graph.Syncer
	if cfg.Graph.Enabled {
		syncer = graph.NewClient(cfg.Graph.Endpoint)
	} else {
		logger.Warn().Msg("knowledge graph sync disabled")
	}

	clientCfg := temporal.ClientConfigFrom(cfg.Temporal)
	clientCfg.Logger = observability.NewTemporalLogger(logger)
	clientCfg.Metrics = metrics
	temporalClient, err := temporal.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.WorkerConfigFrom(cfg.Temporal))
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	manager.RegisterWorkflow(workflows.ArticlePipelineWorkflow, temporal.WorkflowTypeArticlePipeline)

	manager.RegisterActivity(activities.NewResearchActivities(
		research.NewNewsClient(cfg.Research.News),
		research.NewDeepResearchClient(cfg.Research.DeepResearch),
		research.NewCrawler(cfg.Research.Crawl),
		metrics,
	))
	manager.RegisterActivity(activities.NewGenerationActivities(generator))
	manager.RegisterActivity(activities.NewImageActivities(imagegen.NewClient(cfg.Images), metrics))
	manager.RegisterActivity(activities.NewPersistenceActivities(articleRepo, emitter, metrics))
	manager.RegisterActivity(activities.NewGraphActivities(syncer, metrics))
	manager.RegisterActivity(activities.NewStatusActivities(runRepo, metrics))
	manager.RegisterActivity(activities.NewEventActivities(publisher))

	metricsServer := serveMetrics(cfg.Server.MetricsAddress(), logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}()

	if cfg.Kafka.Enabled {
		writer := outbox.NewKafkaWriter(cfg.Kafka)
		relay := outbox.NewRelay(outboxRepo, writer, advisoryLock(db, cfg.Outbox.LockID),
			outbox.RelayConfigFrom(cfg.Outbox), metrics, logger)

		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("outbox relay error")
			}
		}()
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("outbox relay started")

		if cfg.Kafka.Intake.Enabled {
			intakeCfg := intake.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Intake.Topic,
				GroupID: cfg.Kafka.Intake.GroupID,
			}
			pipelineClient := temporal.NewPipelineClient(temporalClient, clientCfg, profiles, cfg.Pipeline.Settings())
			listener := intake.NewListener(intakeCfg, intake.NewReader(intakeCfg), pipelineClient, metrics, logger)
			defer func() {
				if err := listener.Close(); err != nil {
					logger.Error().Err(err).Msg("failed to close intake listener")
				}
			}()

			go func() {
				if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("intake listener error")
				}
			}()
			logger.Info().
				Str("topic", cfg.Kafka.Intake.Topic).
				Str("group_id", cfg.Kafka.Intake.GroupID).
				Msg("intake listener started")
		}
	} else if cfg.Kafka.Intake.Enabled {
		logger.Warn().Msg("intake listener requires kafka.enabled; not starting it")
	}

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Msg("starting temporal worker")

	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down worker")
	manager.Stop()
	logger.Info().Msg("content-pipeline worker stopped")
	return nil
}

// advisoryLock elects the outbox relay leader with a PostgreSQL advisory lock.
func advisoryLock(db *database.DB, key int64) outbox.LockFunc {
	return func(ctx context.Context) (outbox.Lock, error) {
		l, err := db.TryAdvisoryLock(ctx, key)
		if err != nil || l == nil {
			return nil, err
		}
		return l, nil
	}
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	m, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("address", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
