package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
	"github.com/harmonium-app/harmonium/internal/repository/sqlite"
	"github.com/harmonium-app/harmonium/internal/service"
)

// Mirror is the client-side replica of a user's slice of the canonical
// store: a SQLite catalog plus a binary cache of downloaded audio. Deletions
// run the same cascade as the server, bound to local state.
type Mirror struct {
	db      *sqlite.DB
	repos   *repository.Repositories
	cache   BinaryCache
	baseURL string
	strict  bool
	logger  zerolog.Logger
}

// New creates a mirror over an opened SQLite database and a binary cache.
// baseURL is the server's public base URL used to derive stream URLs.
func New(db *sqlite.DB, cache BinaryCache, baseURL string, strict bool, logger zerolog.Logger) *Mirror {
	return &Mirror{
		db:      db,
		repos:   sqlite.NewRepositories(db),
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
		strict:  strict,
		logger:  logger.With().Str("service", "mirror").Logger(),
	}
}

// Repos exposes the mirror-tier repository set.
func (m *Mirror) Repos() *repository.Repositories {
	return m.repos
}

// StreamURLFor derives the stream URL for a file. The binary cache is keyed
// by this string, so derivation must stay stable across releases.
func (m *Mirror) StreamURLFor(fileID uuid.UUID) string {
	return fmt.Sprintf("%s/stream/%s", m.baseURL, fileID)
}

// cacheKeyFor picks the cache key for a song: its recorded key when present,
// otherwise the derived stream URL of its file.
func (m *Mirror) cacheKeyFor(song *domain.Song, fileID uuid.UUID) string {
	if song.CacheKey != nil && *song.CacheKey != "" {
		return *song.CacheKey
	}
	return m.StreamURLFor(fileID)
}

// DeleteLibrary runs the deletion cascade against local state, reporting
// progress through onProgress (which may be nil). Local song and file rows
// go in per-song transactions; cache entries are removed after each commit.
func (m *Mirror) DeleteLibrary(ctx context.Context, libraryID uuid.UUID, onProgress service.ProgressFunc) *service.CascadeResult {
	cascade := service.NewCascade(&mirrorCascadeStore{m: m}, m.strict, m.logger)
	return cascade.Run(ctx, libraryID, onProgress)
}

// DeleteSong removes one song from the mirror: playlist references, the song
// row plus its file reference in one transaction, then the cache entry.
func (m *Mirror) DeleteSong(ctx context.Context, songID uuid.UUID) error {
	song, err := m.repos.Songs.GetByID(ctx, songID)
	if err != nil {
		return err
	}

	if _, err := m.repos.Playlists.DeleteRefsBySongs(ctx, []uuid.UUID{songID}); err != nil {
		return fmt.Errorf("failed to remove playlist references: %w", err)
	}

	file, err := m.repos.Songs.DeleteWithFileRef(ctx, songID)
	if err != nil {
		return err
	}

	_, err = m.purgeBinary(ctx, song, file)
	return err
}

// purgeBinary reclaims a just-deleted song's cached audio. Legacy songs own
// their cache entry outright: it is deleted unconditionally, with no
// reference count involved. Deduplicated songs release the entry and the
// file row only when the count reached zero.
func (m *Mirror) purgeBinary(ctx context.Context, song *domain.Song, file *domain.File) (service.PurgeOutcome, error) {
	if song.IsLegacy() {
		if song.CacheKey == nil || *song.CacheKey == "" {
			return service.PurgeOutcome{}, nil
		}
		if err := m.cache.Delete(ctx, *song.CacheKey); err != nil {
			return service.PurgeOutcome{}, fmt.Errorf("failed to delete legacy cache entry: %w", err)
		}
		return service.PurgeOutcome{CacheDeleted: true}, nil
	}

	if file == nil || file.RefCount > 0 {
		return service.PurgeOutcome{}, nil
	}

	// Cache entry first; an absent entry is a success. The file row is only
	// removed once the binary is gone, mirroring the server's blob-then-row
	// order so a failure leaves a sweepable orphan, not a dangling entry.
	key := m.cacheKeyFor(song, file.ID)
	if err := m.cache.Delete(ctx, key); err != nil {
		return service.PurgeOutcome{}, fmt.Errorf("failed to delete cache entry: %w", err)
	}

	if err := m.repos.Files.Delete(ctx, file.ID); err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return service.PurgeOutcome{CacheDeleted: true}, nil
		}
		return service.PurgeOutcome{CacheDeleted: true}, fmt.Errorf("failed to delete file record: %w", err)
	}

	return service.PurgeOutcome{FileDeleted: true, CacheDeleted: true}, nil
}

// mirrorCascadeStore binds the shared cascade engine to the mirror tier.
type mirrorCascadeStore struct {
	m *Mirror
}

func (st *mirrorCascadeStore) ListSongs(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error) {
	return st.m.repos.Songs.ListByLibrary(ctx, libraryID)
}

func (st *mirrorCascadeStore) DeletePlaylistRefs(ctx context.Context, songIDs []uuid.UUID) (int64, error) {
	return st.m.repos.Playlists.DeleteRefsBySongs(ctx, songIDs)
}

func (st *mirrorCascadeStore) DeleteSongWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error) {
	return st.m.repos.Songs.DeleteWithFileRef(ctx, songID)
}

func (st *mirrorCascadeStore) PurgeBinary(ctx context.Context, song *domain.Song, file *domain.File) (service.PurgeOutcome, error) {
	return st.m.purgeBinary(ctx, song, file)
}

func (st *mirrorCascadeStore) DeleteLibrary(ctx context.Context, libraryID uuid.UUID) error {
	return st.m.repos.Libraries.Delete(ctx, libraryID)
}

// Ensure mirrorCascadeStore implements service.CascadeStore
var _ service.CascadeStore = (*mirrorCascadeStore)(nil)

// Snapshot is a full canonical-state export for one user, applied to the
// mirror as a unit.
type Snapshot struct {
	Libraries []*domain.Library
	Files     []*domain.File
	Songs     []*domain.Song
	Playlists []*domain.Playlist
	Refs      []*domain.PlaylistSong
}

// ApplySnapshot replaces the mirror catalog with a canonical snapshot in one
// transaction. The binary cache is left alone: entries for files no longer
// present simply age out or are reclaimed by later deletions.
func (m *Mirror) ApplySnapshot(ctx context.Context, snap *Snapshot) error {
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"playlist_songs", "playlists", "songs", "files", "libraries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, library := range snap.Libraries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO libraries (id, owner_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				library.ID.String(), library.OwnerID, library.Name,
				library.CreatedAt.UTC().Format(time.RFC3339), library.UpdatedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert library: %w", err)
			}
		}

		for _, file := range snap.Files {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO files (id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				file.ID.String(), file.Hash, file.StorageKey, file.Size, file.MimeType,
				file.Duration, file.Bitrate, file.SampleRate, file.ChannelCount,
				file.RefCount, file.CreatedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert file: %w", err)
			}
		}

		for _, song := range snap.Songs {
			var fileID interface{}
			if song.FileID != nil {
				fileID = song.FileID.String()
			}
			var cacheKey interface{}
			if song.CacheKey != nil {
				cacheKey = *song.CacheKey
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO songs (id, library_id, file_id, cache_key, title, artist, album, album_artist, genre, composer, year, track_number, disc_number, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				song.ID.String(), song.LibraryID.String(), fileID, cacheKey,
				song.Title, song.Artist, song.Album, song.AlbumArtist, song.Genre, song.Composer,
				song.Year, song.TrackNumber, song.DiscNumber,
				song.CreatedAt.UTC().Format(time.RFC3339), song.UpdatedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert song: %w", err)
			}
		}

		for _, playlist := range snap.Playlists {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO playlists (id, owner_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				playlist.ID.String(), playlist.OwnerID, playlist.Name,
				playlist.CreatedAt.UTC().Format(time.RFC3339), playlist.UpdatedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert playlist: %w", err)
			}
		}

		for _, ref := range snap.Refs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO playlist_songs (playlist_id, song_id, position, added_at) VALUES (?, ?, ?, ?)`,
				ref.PlaylistID.String(), ref.SongID.String(), ref.Position,
				ref.AddedAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert playlist reference: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info().
		Int("libraries", len(snap.Libraries)).
		Int("files", len(snap.Files)).
		Int("songs", len(snap.Songs)).
		Int("playlists", len(snap.Playlists)).
		Msg("applied canonical snapshot")

	return nil
}
