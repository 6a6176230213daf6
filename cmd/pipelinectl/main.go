// Package main provides pipelinectl, the operator CLI for pipeline runs and
// database migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/newsroom/content-pipeline/internal/apps"
	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

// pipelineAPI is the subset of *temporal.PipelineClient the run commands use.
type pipelineAPI interface {
	StartWorkflow(ctx context.Context, req domain.WorkflowRequest) (string, error)
	GetStatus(ctx context.Context, workflowID string) (*temporal.RunStatus, error)
	GetResult(ctx context.Context, workflowID string) (*domain.WorkflowResult, error)
	QueryProgress(ctx context.Context, workflowID string) (*temporal.PipelineProgress, error)
	Cancel(ctx context.Context, workflowID, reason string) error
	Close()
}

// dialFunc opens a pipeline client from the loaded configuration.
type dialFunc func(cfg *config.Config, logger zerolog.Logger) (pipelineAPI, error)

type cli struct {
	dial    dialFunc
	load    func() (*config.Config, error)
	timeout time.Duration
}

func main() {
	c := &cli{dial: dialPipeline, load: config.Load}
	if err := c.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the article content pipeline",
		Long:          `pipelinectl starts, inspects and cancels article pipeline runs and manages the database schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Timeout for each call to the pipeline")

	root.AddCommand(
		c.startCmd(),
		c.statusCmd(),
		c.resultCmd(),
		c.progressCmd(),
		c.cancelCmd(),
		c.migrateCmd(),
	)
	return root
}

// withPipeline loads config, dials the pipeline and runs fn with a bounded context.
func (c *cli) withPipeline(cmd *cobra.Command, fn func(ctx context.Context, p pipelineAPI) error) error {
	cfg, err := c.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cliLogger("pipelinectl")

	p, err := c.dial(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	return fn(ctx, p)
}

func dialPipeline(cfg *config.Config, logger zerolog.Logger) (pipelineAPI, error) {
	profiles, err := apps.Load(cfg.Apps.Path)
	if err != nil {
		return nil, fmt.Errorf("load app profiles: %w", err)
	}

	clientCfg := temporal.ClientConfigFrom(cfg.Temporal)
	clientCfg.Logger = observability.NewTemporalLogger(logger.Level(zerolog.WarnLevel))
	tc, err := temporal.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to temporal: %w", err)
	}
	return temporal.NewPipelineClient(tc, clientCfg, profiles, cfg.Pipeline.Settings()), nil
}

func cliLogger(component string) zerolog.Logger {
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	})
	return observability.WithComponent(logger, component)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
