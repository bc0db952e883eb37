// Package repository defines data access interfaces for Harmonium.
// These interfaces abstract database operations so the service layer can run
// against the canonical PostgreSQL store on the server and the embedded
// SQLite mirror on the client without changing logic.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
)

// =============================================================================
// File Repository (Content-Addressable Storage Metadata)
// =============================================================================

// FileRepository manages the canonical file table and its reference counts.
// All ref_count mutations are single-statement conditional updates: the
// read-modify-write pattern is deliberately not part of this interface.
type FileRepository interface {
	// Create inserts a new file row with ref_count = 1.
	// Returns domain.ErrDuplicateHash when a row with the same content hash
	// already exists (two concurrent novel uploads of identical bytes).
	Create(ctx context.Context, file *domain.File) error

	// Upsert inserts the file with ref_count = 1, or increments the existing
	// row's ref_count when the hash is already present, in one statement.
	// Returns the row as stored and whether it was newly created. This is
	// what closes the duplicate-hash race between concurrent uploads.
	Upsert(ctx context.Context, file *domain.File) (*domain.File, bool, error)

	// GetByID retrieves a file by its surrogate key.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error)

	// GetByHash retrieves a file by its content hash.
	GetByHash(ctx context.Context, hash string) (*domain.File, error)

	// IncrementRef atomically increments the reference count.
	IncrementRef(ctx context.Context, id uuid.UUID) error

	// IncrementRefByHash atomically increments the reference count of the
	// file with the given hash and returns the updated row in the same
	// statement. Returns domain.ErrFileNotFound when no such hash exists.
	IncrementRefByHash(ctx context.Context, hash string) (*domain.File, error)

	// DecrementRef atomically decrements the reference count and returns
	// the new value in the same statement (decrement-and-fetch). A result
	// of zero or less means the file is ready to purge.
	DecrementRef(ctx context.Context, id uuid.UUID) (newRefCount int32, err error)

	// GetRefCount returns the current reference count.
	GetRefCount(ctx context.Context, id uuid.UUID) (int32, error)

	// Delete removes the file row. Only deletes rows with ref_count <= 0;
	// returns domain.ErrFileNotFound when the row is absent or still
	// referenced.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListOrphans returns files with ref_count <= 0 older than the grace
	// period, for the reconciliation sweep.
	ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.File, error)
}

// =============================================================================
// Song Repository
// =============================================================================

// SongRepository manages library entries.
type SongRepository interface {
	// Create inserts a new song row.
	Create(ctx context.Context, song *domain.Song) error

	// GetByID retrieves a song by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Song, error)

	// ListByLibrary returns all songs in a library, in insertion order.
	ListByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error)

	// CountByFile returns the number of songs referencing a file. At
	// quiescence this equals the file's ref_count.
	CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error)

	// DeleteWithFileRef deletes the song row and decrements its file's
	// ref_count inside one transaction, returning the file as of the
	// decrement. Returns (nil, nil) when the song had no file reference
	// (legacy rows). Returns domain.ErrSongNotFound when the song is absent.
	DeleteWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error)
}

// =============================================================================
// Library Repository
// =============================================================================

// LibraryRepository manages libraries.
type LibraryRepository interface {
	// Create inserts a new library.
	Create(ctx context.Context, library *domain.Library) error

	// GetByID retrieves a library by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Library, error)

	// Delete removes the library row. Dependent songs are cleaned up by the
	// cascade, not by the database.
	Delete(ctx context.Context, id uuid.UUID) error
}

// =============================================================================
// Playlist Repository
// =============================================================================

// PlaylistRepository manages playlists and their membership rows.
type PlaylistRepository interface {
	// Create inserts a new playlist.
	Create(ctx context.Context, playlist *domain.Playlist) error

	// GetByID retrieves a playlist by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Playlist, error)

	// AddSong appends a song to a playlist.
	AddSong(ctx context.Context, ps *domain.PlaylistSong) error

	// ListSongs returns a playlist's membership rows ordered by position.
	ListSongs(ctx context.Context, playlistID uuid.UUID) ([]*domain.PlaylistSong, error)

	// DeleteRefsBySongs removes every membership row pointing at any of the
	// given songs, across all playlists. Returns the number removed.
	DeleteRefsBySongs(ctx context.Context, songIDs []uuid.UUID) (int64, error)

	// Delete removes the playlist and its membership rows.
	Delete(ctx context.Context, id uuid.UUID) error
}

// =============================================================================
// Repositories bundle
// =============================================================================

// Repositories holds one tier's repository set.
type Repositories struct {
	Files     FileRepository
	Songs     SongRepository
	Libraries LibraryRepository
	Playlists PlaylistRepository
}
