package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newsroom/content-pipeline/internal/domain"
)

type startOptions struct {
	app        string
	words      int
	sources    int
	deepCrawl  bool
	skipImages bool
	skipGraph  bool
	publish    bool
}

func (o startOptions) request(topic string) domain.WorkflowRequest {
	return domain.WorkflowRequest{
		Topic:           topic,
		App:             o.app,
		TargetWordCount: o.words,
		SourceCount:     o.sources,
		AutoPublish:     o.publish,
		Flags: domain.PipelineFlags{
			DeepCrawl:     o.deepCrawl,
			SkipImages:    o.skipImages,
			SkipGraphSync: o.skipGraph,
		},
	}
}

func (c *cli) startCmd() *cobra.Command {
	var opts startOptions
	cmd := &cobra.Command{
		Use:   "start <topic>",
		Short: "Start a pipeline run for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, p pipelineAPI) error {
				runID, err := p.StartWorkflow(ctx, opts.request(args[0]))
				if err != nil {
					return fmt.Errorf("start run: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), runID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.app, "app", "", "App profile to write for (defaults to the registry default)")
	f.IntVar(&opts.words, "words", 0, "Target word count")
	f.IntVar(&opts.sources, "sources", 0, "Number of research sources to gather")
	f.BoolVar(&opts.deepCrawl, "deep-crawl", false, "Crawl source pages for full text")
	f.BoolVar(&opts.skipImages, "skip-images", false, "Do not generate images")
	f.BoolVar(&opts.skipGraph, "skip-graph", false, "Do not sync the article to the knowledge graph")
	f.BoolVar(&opts.publish, "auto-publish", false, "Publish without editorial review when the draft passes the gate")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run without waiting for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, p pipelineAPI) error {
				st, err := p.GetStatus(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get status: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func (c *cli) resultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <run-id>",
		Short: "Wait for a run to finish and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, p pipelineAPI) error {
				res, err := p.GetResult(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get result: %w", err)
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Status == domain.StatusFailed {
					return fmt.Errorf("run %s failed", args[0])
				}
				return nil
			})
		},
	}
}

func (c *cli) progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <run-id>",
		Short: "Query the live progress of a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, p pipelineAPI) error {
				progress, err := p.QueryProgress(ctx, args[0])
				if err != nil {
					return fmt.Errorf("query progress: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), progress)
			})
		},
	}
}

func (c *cli) cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Ask a run to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, p pipelineAPI) error {
				if err := p.Cancel(ctx, args[0], reason); err != nil {
					return fmt.Errorf("cancel run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the cancellation")
	return cmd
}
