package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/newsroom/content-pipeline/internal/database"
)

const migrateConnectTimeout = 30 * time.Second

func (c *cli) migrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Override the migrations directory")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(m *database.Migrator, logger zerolog.Logger) error {
					logger.Info().Msg("running all pending migrations")
					if err := m.Up(); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(m *database.Migrator, logger zerolog.Logger) error {
					logger.Warn().Msg("rolling back all migrations")
					if err := m.Down(); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, or roll back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return c.withMigrator(cmd, path, func(m *database.Migrator, logger zerolog.Logger) error {
					logger.Info().Int("steps", n).Msg("running migration steps")
					if err := m.Steps(n); err != nil {
						return fmt.Errorf("migrate steps: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(*database.Migrator, zerolog.Logger) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark the schema as being at version, clearing the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				return c.withMigrator(cmd, path, func(m *database.Migrator, logger zerolog.Logger) error {
					logger.Warn().Int("version", v).Msg("forcing migration version")
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// withMigrator connects to the database, runs fn and logs the resulting version.
func (c *cli) withMigrator(cmd *cobra.Command, path string, fn func(*database.Migrator, zerolog.Logger) error) error {
	cfg, err := c.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cliLogger("migrate")

	dir := cfg.Database.MigrationPath
	if path != "" {
		dir = path
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), migrateConnectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := fn(m, logger); err != nil {
		return err
	}

	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return nil
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
	return nil
}
