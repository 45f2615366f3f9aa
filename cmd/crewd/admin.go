package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/postgres"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/config"
)

// runMigrate dispatches migrate subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "schema version: %d\n", v)
	return nil
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: crewd migrate <command> [options]

Commands:
  up                 Apply all pending migrations
  down [--steps N]   Roll back the last N migrations (default 1)
  version            Print the current schema version
  help               Show this help message
`)
}
