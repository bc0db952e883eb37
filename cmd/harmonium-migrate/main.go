// Package main is the entry point for the Harmonium schema migration tool.
// It manages the canonical-tier PostgreSQL schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/config"
	"github.com/harmonium-app/harmonium/internal/repository/postgres"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		fmt.Printf("Harmonium Migration Tool\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)

	case "up":
		if err := withDB(*configPath, func(ctx context.Context, db *postgres.DB) error {
			return db.Migrate(ctx)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")

	case "status":
		if err := withDB(*configPath, func(ctx context.Context, db *postgres.DB) error {
			var version int
			err := db.Pool.QueryRow(ctx,
				`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
			if err != nil {
				return err
			}
			fmt.Printf("current schema version: %d\n", version)
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "status check failed: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func withDB(configPath string, fn func(ctx context.Context, db *postgres.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}

func printUsage() {
	fmt.Println(`Harmonium Migration Tool

Usage:
  harmonium-migrate [-config path] <command>

Commands:
  up          Apply all pending migrations
  status      Show the current schema version
  version     Print version information
  help        Show this help message

Configuration is read the same way as the server: a config file plus
HARMONIUM_-prefixed environment variables.`)
}
