package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/lock"
	"github.com/harmonium-app/harmonium/internal/metrics"
	"github.com/harmonium-app/harmonium/internal/objectstore"
	"github.com/harmonium-app/harmonium/internal/repository"
	"github.com/harmonium-app/harmonium/internal/tags"
)

// LibraryService owns library and song lifecycle on the canonical tier.
type LibraryService struct {
	repos   *repository.Repositories
	store   objectstore.Store
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	strict  bool
}

// NewLibraryService creates a new library service. strict selects the
// cascade failure mode: abort on the first per-song failure instead of
// accumulating errors and finishing.
func NewLibraryService(
	repos *repository.Repositories,
	store objectstore.Store,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	strict bool,
) *LibraryService {
	return &LibraryService{
		repos:   repos,
		store:   store,
		locker:  locker,
		metrics: m,
		logger:  logger.With().Str("service", "library").Logger(),
		strict:  strict,
	}
}

// CreateLibrary creates an empty library.
func (s *LibraryService) CreateLibrary(ctx context.Context, ownerID int64, name string) (*domain.Library, error) {
	library := domain.NewLibrary(ownerID, name)
	if err := s.repos.Libraries.Create(ctx, library); err != nil {
		return nil, fmt.Errorf("failed to create library: %w", err)
	}

	s.logger.Info().
		Str("library_id", library.ID.String()).
		Int64("owner_id", ownerID).
		Msg("created library")

	return library, nil
}

// AddSong adds a song to a library, taking one reference on the file.
// The file's ref_count is incremented first; if the song insert then fails,
// the increment is rolled back so the count never drifts upward.
func (s *LibraryService) AddSong(ctx context.Context, libraryID, fileID uuid.UUID, t tags.Tags) (*domain.Song, error) {
	if _, err := s.repos.Libraries.GetByID(ctx, libraryID); err != nil {
		return nil, err
	}

	if err := s.repos.Files.IncrementRef(ctx, fileID); err != nil {
		return nil, fmt.Errorf("failed to take file reference: %w", err)
	}

	song := domain.NewSong(libraryID, fileID, t.Title)
	song.Artist = t.Artist
	song.Album = t.Album
	song.AlbumArtist = t.AlbumArtist
	song.Genre = t.Genre
	song.Composer = t.Composer
	song.Year = t.Year
	song.TrackNumber = t.TrackNumber
	song.DiscNumber = t.DiscNumber

	if err := s.repos.Songs.Create(ctx, song); err != nil {
		if _, decErr := s.repos.Files.DecrementRef(ctx, fileID); decErr != nil {
			s.logger.Error().Err(decErr).
				Str("file_id", fileID.String()).
				Msg("failed to roll back file reference after song insert failure")
		}
		return nil, fmt.Errorf("failed to create song: %w", err)
	}

	return song, nil
}

// DeleteSong removes one song from a library: its playlist references, its
// row, and its share of the file. The song must belong to the named library.
// The song row and the ref_count decrement commit in one transaction; the
// binary purge runs after the commit, so a purge failure leaves an orphan
// file for the reconciliation sweep rather than a dangling song.
func (s *LibraryService) DeleteSong(ctx context.Context, libraryID, songID uuid.UUID) error {
	song, err := s.repos.Songs.GetByID(ctx, songID)
	if err != nil {
		return err
	}
	if song.LibraryID != libraryID {
		return domain.ErrSongNotInLibrary
	}

	if _, err := s.repos.Playlists.DeleteRefsBySongs(ctx, []uuid.UUID{songID}); err != nil {
		return fmt.Errorf("failed to remove playlist references: %w", err)
	}

	file, err := s.repos.Songs.DeleteWithFileRef(ctx, songID)
	if err != nil {
		return err
	}

	if _, err := s.purgeFile(ctx, file); err != nil {
		s.logger.Error().Err(err).
			Str("song_id", song.ID.String()).
			Msg("song deleted but binary purge failed, leaving orphan for sweep")
		return err
	}

	return nil
}

// DeleteLibrary runs the full deletion cascade for a library. onProgress may
// be nil. Concurrent cascades for the same library are rejected.
func (s *LibraryService) DeleteLibrary(ctx context.Context, libraryID uuid.UUID, onProgress ProgressFunc) (*CascadeResult, error) {
	if _, err := s.repos.Libraries.GetByID(ctx, libraryID); err != nil {
		return nil, err
	}

	lockKey := lock.Keys.LibraryCascade(libraryID.String())
	acquired, err := s.locker.Acquire(ctx, lockKey, 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cascade lock: %w", err)
	}
	if !acquired {
		return nil, ErrCascadeInProgress
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Str("library_id", libraryID.String()).Msg("failed to release cascade lock")
		}
	}()

	cascade := NewCascade(&serverCascadeStore{s: s}, s.strict, s.logger)
	result := cascade.Run(ctx, libraryID, onProgress)

	if s.metrics != nil {
		outcome := "ok"
		switch {
		case !result.Success:
			outcome = "failed"
		case result.Partial():
			outcome = "partial"
		}
		s.metrics.RecordCascade(outcome, result.DeletedSongs, result.DeletedFiles, result.Duration.Seconds())
	}

	return result, nil
}

// DecrementFileRef is the reusable release-one-reference primitive: atomic
// decrement-and-fetch, then blob + record purge once the count reaches zero.
// Returns whether the file record was purged.
func (s *LibraryService) DecrementFileRef(ctx context.Context, fileID uuid.UUID) (bool, error) {
	newCount, err := s.repos.Files.DecrementRef(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			// Already gone; releasing a reference to nothing is a no-op.
			return false, nil
		}
		return false, err
	}
	if newCount > 0 {
		return false, nil
	}

	file, err := s.repos.Files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}

	return s.purgeFile(ctx, file)
}

// purgeFile deletes the binary and the file record once the reference count
// has reached zero. A file still holding references is left untouched.
func (s *LibraryService) purgeFile(ctx context.Context, file *domain.File) (bool, error) {
	if file == nil || file.RefCount > 0 {
		return false, nil
	}

	// Blob first. An absent key counts as success; any other storage error
	// leaves the record behind so the sweep retries later.
	if err := s.store.Delete(ctx, file.StorageKey); err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", file.StorageKey, err)
	}

	if err := s.repos.Files.Delete(ctx, file.ID); err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			// Re-referenced or already purged between decrement and now.
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file record: %w", err)
	}

	s.logger.Debug().
		Str("file_id", file.ID.String()).
		Str("hash", file.Hash).
		Int64("size", file.Size).
		Msg("purged unreferenced file")

	return true, nil
}

// serverCascadeStore binds the cascade engine to the canonical tier.
type serverCascadeStore struct {
	s *LibraryService
}

func (st *serverCascadeStore) ListSongs(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error) {
	return st.s.repos.Songs.ListByLibrary(ctx, libraryID)
}

func (st *serverCascadeStore) DeletePlaylistRefs(ctx context.Context, songIDs []uuid.UUID) (int64, error) {
	return st.s.repos.Playlists.DeleteRefsBySongs(ctx, songIDs)
}

func (st *serverCascadeStore) DeleteSongWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error) {
	return st.s.repos.Songs.DeleteWithFileRef(ctx, songID)
}

func (st *serverCascadeStore) PurgeBinary(ctx context.Context, song *domain.Song, file *domain.File) (PurgeOutcome, error) {
	// Legacy songs hold no canonical binary; nothing to reclaim server-side.
	if file == nil {
		return PurgeOutcome{}, nil
	}
	purged, err := st.s.purgeFile(ctx, file)
	return PurgeOutcome{FileDeleted: purged}, err
}

func (st *serverCascadeStore) DeleteLibrary(ctx context.Context, libraryID uuid.UUID) error {
	return st.s.repos.Libraries.Delete(ctx, libraryID)
}

// Ensure serverCascadeStore implements CascadeStore
var _ CascadeStore = (*serverCascadeStore)(nil)
