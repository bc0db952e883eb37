package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/domain"
)

// CascadeStore is the tier-local data plane a deletion cascade runs against.
// The server binds it to the PostgreSQL repositories plus the object store;
// the client binds it to the SQLite mirror plus the binary cache. The
// traversal itself lives here, once.
type CascadeStore interface {
	// ListSongs returns every song in the library.
	ListSongs(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error)

	// DeletePlaylistRefs removes playlist membership rows for the given
	// songs across all playlists, returning the number removed.
	DeletePlaylistRefs(ctx context.Context, songIDs []uuid.UUID) (int64, error)

	// DeleteSongWithFileRef deletes the song row and decrements its file's
	// ref_count in one tier-local transaction, returning the file as of the
	// decrement. (nil, nil) means the song carried no file reference.
	DeleteSongWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error)

	// PurgeBinary reclaims the binary belonging to a just-deleted song.
	// file is the post-decrement row, or nil for legacy songs. Called after
	// the song's database transaction has committed.
	PurgeBinary(ctx context.Context, song *domain.Song, file *domain.File) (PurgeOutcome, error)

	// DeleteLibrary removes the library row itself.
	DeleteLibrary(ctx context.Context, libraryID uuid.UUID) error
}

// PurgeOutcome reports what a PurgeBinary call reclaimed.
type PurgeOutcome struct {
	FileDeleted  bool
	CacheDeleted bool
}

// ProgressStage identifies a phase of the cascade.
type ProgressStage string

// Cascade stages, in order.
const (
	StageSongs         ProgressStage = "songs"
	StagePlaylistSongs ProgressStage = "playlist_songs"
	StageDeletingSongs ProgressStage = "deleting_songs"
	StageLibrary       ProgressStage = "library"
	StageComplete      ProgressStage = "complete"
)

// Progress is a point-in-time cascade status. Within a stage, Current never
// decreases and never exceeds Total.
type Progress struct {
	Stage   ProgressStage
	Current int
	Total   int
}

// ProgressFunc receives cascade progress updates. May be nil.
type ProgressFunc func(Progress)

// SongError records a per-song failure that did not stop the cascade.
type SongError struct {
	SongID uuid.UUID
	Err    error
}

func (e SongError) Error() string {
	return fmt.Sprintf("song %s: %v", e.SongID, e.Err)
}

// CascadeResult aggregates the outcome of a library deletion cascade.
type CascadeResult struct {
	// Success means the library row was deleted and no fatal error occurred.
	// Per-song failures in best-effort mode do not clear it.
	Success bool

	// DeletedSongs is the number of songs fully reclaimed: row removed and
	// binary purge completed. A song whose purge failed is reported through
	// Errors instead, even though its row is gone.
	DeletedSongs int

	// DeletedFiles is the number of file records purged (ref_count hit zero).
	DeletedFiles int

	// DeletedCacheEntries is the number of binary cache entries removed
	// (mirror tier only).
	DeletedCacheEntries int

	// PlaylistRefsRemoved is the number of playlist membership rows removed.
	PlaylistRefsRemoved int64

	// Errors holds per-song failures that the cascade survived.
	Errors []SongError

	// Err is set when the cascade stopped before deleting the library.
	Err error

	// Duration is how long the cascade took.
	Duration time.Duration
}

// Partial reports whether the cascade finished with per-song failures.
func (r *CascadeResult) Partial() bool {
	return len(r.Errors) > 0
}

// Cascade walks a library's songs and reclaims everything they hold, in a
// fixed stage order, against whichever tier the store binds it to.
type Cascade struct {
	store  CascadeStore
	strict bool
	logger zerolog.Logger
}

// NewCascade creates a cascade engine. In strict mode the first per-song
// failure aborts the run and the library row is kept; in best-effort mode
// failures are recorded and the cascade continues to the end.
func NewCascade(store CascadeStore, strict bool, logger zerolog.Logger) *Cascade {
	return &Cascade{
		store:  store,
		strict: strict,
		logger: logger.With().Str("service", "cascade").Logger(),
	}
}

// Run executes the full deletion cascade for a library.
func (c *Cascade) Run(ctx context.Context, libraryID uuid.UUID, onProgress ProgressFunc) *CascadeResult {
	start := time.Now()
	result := &CascadeResult{}
	report := func(stage ProgressStage, current, total int) {
		if onProgress != nil {
			onProgress(Progress{Stage: stage, Current: current, Total: total})
		}
	}

	logger := c.logger.With().Str("library_id", libraryID.String()).Logger()
	logger.Info().Bool("strict", c.strict).Msg("starting library deletion cascade")

	// Stage 1: enumerate songs.
	report(StageSongs, 0, 1)
	songs, err := c.store.ListSongs(ctx, libraryID)
	if err != nil {
		result.Err = fmt.Errorf("failed to list library songs: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	report(StageSongs, 1, 1)

	// Stage 2: purge playlist references for every song up front, so no
	// playlist points at a half-deleted library.
	report(StagePlaylistSongs, 0, 1)
	if len(songs) > 0 {
		songIDs := make([]uuid.UUID, len(songs))
		for i, song := range songs {
			songIDs[i] = song.ID
		}
		removed, err := c.store.DeletePlaylistRefs(ctx, songIDs)
		if err != nil {
			result.Err = fmt.Errorf("failed to remove playlist references: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		result.PlaylistRefsRemoved = removed
	}
	report(StagePlaylistSongs, 1, 1)

	// Stage 3: per-song deletion. Each song's database work runs in its own
	// tier-local transaction; the binary purge follows the commit.
	report(StageDeletingSongs, 0, len(songs))
	for i, song := range songs {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		file, err := c.store.DeleteSongWithFileRef(ctx, song.ID)
		if err != nil {
			logger.Error().Err(err).Str("song_id", song.ID.String()).Msg("failed to delete song")
			result.Errors = append(result.Errors, SongError{SongID: song.ID, Err: err})
			if c.strict {
				result.Err = ErrCascadeAborted
				result.Duration = time.Since(start)
				return result
			}
			report(StageDeletingSongs, i+1, len(songs))
			continue
		}
		outcome, err := c.store.PurgeBinary(ctx, song, file)
		if err != nil {
			// The song row is already gone; a failed purge leaves an orphan
			// for the reconciliation sweep. The song counts as an error, not
			// a deletion.
			logger.Error().Err(err).Str("song_id", song.ID.String()).Msg("failed to purge binary")
			result.Errors = append(result.Errors, SongError{SongID: song.ID, Err: err})
			if c.strict {
				result.Err = ErrCascadeAborted
				result.Duration = time.Since(start)
				return result
			}
			report(StageDeletingSongs, i+1, len(songs))
			continue
		}
		result.DeletedSongs++
		if outcome.FileDeleted {
			result.DeletedFiles++
		}
		if outcome.CacheDeleted {
			result.DeletedCacheEntries++
		}

		report(StageDeletingSongs, i+1, len(songs))
	}

	// Stage 4: the library row. In strict mode accumulated failures keep it.
	report(StageLibrary, 0, 1)
	if c.strict && len(result.Errors) > 0 {
		result.Err = ErrCascadeAborted
		result.Duration = time.Since(start)
		return result
	}
	if err := c.store.DeleteLibrary(ctx, libraryID); err != nil {
		result.Err = fmt.Errorf("failed to delete library: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	report(StageLibrary, 1, 1)

	result.Success = true
	result.Duration = time.Since(start)
	report(StageComplete, 1, 1)

	logger.Info().
		Int("deleted_songs", result.DeletedSongs).
		Int("deleted_files", result.DeletedFiles).
		Int("deleted_cache_entries", result.DeletedCacheEntries).
		Int64("playlist_refs_removed", result.PlaylistRefsRemoved).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("library deletion cascade completed")

	return result
}
