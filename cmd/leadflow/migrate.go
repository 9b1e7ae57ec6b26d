package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/technosurge/leadflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate 处理 migrate 子命令: up, down, steps <n>, force <v>, version, status
func runMigrate(args []string) int {
	if len(args) < 1 {
		printMigrateUsage()
		return 1
	}

	action := args[0]
	if action == "help" || action == "-h" || action == "--help" {
		printMigrateUsage()
		return 0
	}

	fs := flag.NewFlagSet("migrate "+action, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args[1:])

	arg, err := migrateArg(action, fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printMigrateUsage()
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	m, err := migration.NewFromConfig(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer m.Close()

	if err := migration.NewCLI(m).Run(context.Background(), action, arg); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", action, err)
		return 1
	}
	return 0
}

// migrateArg steps 与 force 需要一个整数参数
func migrateArg(action string, rest []string) (int, error) {
	switch action {
	case "steps", "force":
		if len(rest) != 1 {
			return 0, fmt.Errorf("migrate %s requires exactly one integer argument", action)
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return 0, fmt.Errorf("migrate %s: invalid number %q", action, rest[0])
		}
		return n, nil
	case "up", "down", "version", "status":
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown migrate subcommand: %s", action)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  leadflow migrate <subcommand> [--config path] [arg]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n > 0) or roll back (n < 0) n migrations
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  help        Show this help message

The database is taken from the 'database' section of the config.
Relative sqlite paths are resolved against $LEADFLOW_HOME.`)
}
