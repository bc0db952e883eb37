// Package main is the entry point for the Harmonium agent, the client-side
// tier: an offline SQLite mirror of the user's catalog plus a binary cache
// of downloaded audio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/config"
	"github.com/harmonium-app/harmonium/internal/mirror"
	"github.com/harmonium-app/harmonium/internal/repository/sqlite"
	"github.com/harmonium-app/harmonium/internal/service"
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

	if args[0] == "version" {
		fmt.Printf("Harmonium Agent\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		return
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if err := run(cfg, logger, args); err != nil {
		logger.Fatal().Err(err).Msg("agent command failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger, args []string) error {
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.Config{
		Path:            cfg.Mirror.Path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     cfg.Mirror.JournalMode,
		BusyTimeout:     cfg.Mirror.BusyTimeout,
		CacheSize:       cfg.Mirror.CacheSize,
		SynchronousMode: cfg.Mirror.SynchronousMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("mirror database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("mirror migrations: %w", err)
	}

	cache, err := mirror.NewFilesystemCache(cfg.Mirror.CacheDir)
	if err != nil {
		return fmt.Errorf("binary cache: %w", err)
	}

	m := mirror.New(db, cache, cfg.Server.PublicBaseURL, cfg.Cascade.Strict(), logger)

	switch args[0] {
	case "migrate":
		// Migration already ran above; this command exists so setup scripts
		// can prepare the mirror without running anything else.
		logger.Info().Str("path", cfg.Mirror.Path).Msg("mirror schema up to date")
		return nil

	case "delete-library":
		if len(args) < 2 {
			return fmt.Errorf("usage: harmonium-agent delete-library <library-id>")
		}
		libraryID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid library id %q: %w", args[1], err)
		}
		return deleteLibrary(ctx, m, logger, libraryID)

	case "delete-song":
		if len(args) < 2 {
			return fmt.Errorf("usage: harmonium-agent delete-song <song-id>")
		}
		songID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid song id %q: %w", args[1], err)
		}
		return m.DeleteSong(ctx, songID)

	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func deleteLibrary(ctx context.Context, m *mirror.Mirror, logger zerolog.Logger, libraryID uuid.UUID) error {
	result := m.DeleteLibrary(ctx, libraryID, func(p service.Progress) {
		logger.Info().
			Str("stage", string(p.Stage)).
			Int("current", p.Current).
			Int("total", p.Total).
			Msg("cascade progress")
	})

	if !result.Success {
		return fmt.Errorf("cascade failed: %w", result.Err)
	}

	logger.Info().
		Int("deleted_songs", result.DeletedSongs).
		Int("deleted_files", result.DeletedFiles).
		Int("deleted_cache_entries", result.DeletedCacheEntries).
		Int64("playlist_refs_removed", result.PlaylistRefsRemoved).
		Int("errors", len(result.Errors)).
		Msg("library deleted")

	for _, songErr := range result.Errors {
		logger.Warn().
			Str("song_id", songErr.SongID.String()).
			Err(songErr.Err).
			Msg("song left behind by cascade")
	}

	return nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return logger.Level(level).With().Timestamp().Logger()
}

func printUsage() {
	fmt.Println(`Harmonium Agent

Usage:
  harmonium-agent [-config path] <command> [arguments]

Commands:
  migrate                      Prepare the mirror database schema
  delete-library <library-id>  Delete a library and everything it holds
  delete-song <song-id>        Delete a single song
  version                      Print version information
  help                         Show this help message`)
}
