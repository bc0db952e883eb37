package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/lock"
	"github.com/harmonium-app/harmonium/internal/objectstore"
	"github.com/harmonium-app/harmonium/internal/tags"
)

// failingDeleteStore wraps a Store and fails deletes for one key.
type failingDeleteStore struct {
	objectstore.Store
	failKey string
}

func (s *failingDeleteStore) Delete(ctx context.Context, key string) error {
	if key == s.failKey {
		return errors.New("storage unavailable")
	}
	return s.Store.Delete(ctx, key)
}

func newLibraryService(tier *fakeTier, store objectstore.Store, strict bool) *LibraryService {
	return NewLibraryService(tier.repos(), store, lock.NewNoOpLocker(), nil, zerolog.Nop(), strict)
}

// seedBlob puts a file's payload into the object store so purges have
// something to delete.
func seedBlob(t *testing.T, store objectstore.Store, file *domain.File) {
	t.Helper()
	err := store.Put(context.Background(), file.StorageKey, strings.NewReader("x"), 1, file.MimeType)
	require.NoError(t, err)
}

func TestLibraryService_DeleteSong_SharedFileSurvives(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	library := tier.addLibrary(1, "mine")
	other := tier.addLibrary(2, "theirs")

	file := tier.addFile("aa11", 2)
	seedBlob(t, store, file)
	mine := tier.addSong(library.ID, &file.ID, "shared one")
	tier.addSong(other.ID, &file.ID, "shared two")

	require.NoError(t, svc.DeleteSong(context.Background(), library.ID, mine.ID))

	// One reference released; the file and its blob stay for the other song.
	got, err := tier.repos().Files.GetByID(context.Background(), file.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.RefCount)

	exists, err := store.Exists(context.Background(), file.StorageKey)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLibraryService_DeleteSong_LastReferencePurges(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	library := tier.addLibrary(1, "mine")
	file := tier.addFile("bb22", 1)
	seedBlob(t, store, file)
	song := tier.addSong(library.ID, &file.ID, "only one")

	require.NoError(t, svc.DeleteSong(context.Background(), library.ID, song.ID))

	_, err := tier.repos().Files.GetByID(context.Background(), file.ID)
	require.ErrorIs(t, err, domain.ErrFileNotFound)

	exists, err := store.Exists(context.Background(), file.StorageKey)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLibraryService_DeleteSong_NotFound(t *testing.T) {
	tier := newFakeTier()
	svc := newLibraryService(tier, objectstore.NewMemoryStore(), false)

	err := svc.DeleteSong(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, domain.ErrSongNotFound)
}

func TestLibraryService_DeleteSong_WrongLibrary(t *testing.T) {
	tier := newFakeTier()
	svc := newLibraryService(tier, objectstore.NewMemoryStore(), false)

	library := tier.addLibrary(1, "mine")
	other := tier.addLibrary(2, "theirs")
	file := tier.addFile("cd11", 1)
	song := tier.addSong(other.ID, &file.ID, "not yours")

	err := svc.DeleteSong(context.Background(), library.ID, song.ID)
	require.ErrorIs(t, err, domain.ErrSongNotInLibrary)

	// Nothing was touched.
	_, err = tier.repos().Songs.GetByID(context.Background(), song.ID)
	require.NoError(t, err)
	count, err := tier.repos().Files.GetRefCount(context.Background(), file.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), count)
}

func TestLibraryService_DeleteSong_PurgeFailureLeavesOrphan(t *testing.T) {
	tier := newFakeTier()
	inner := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, inner, false)

	library := tier.addLibrary(1, "mine")
	file := tier.addFile("cc33", 1)
	seedBlob(t, inner, file)
	song := tier.addSong(library.ID, &file.ID, "doomed")

	svc.store = &failingDeleteStore{Store: inner, failKey: file.StorageKey}

	err := svc.DeleteSong(context.Background(), library.ID, song.ID)
	require.Error(t, err)

	// The song is gone but the file record remains at ref_count zero,
	// waiting for the sweep.
	_, err = tier.repos().Songs.GetByID(context.Background(), song.ID)
	require.ErrorIs(t, err, domain.ErrSongNotFound)

	got, err := tier.repos().Files.GetByID(context.Background(), file.ID)
	require.NoError(t, err)
	require.True(t, got.IsOrphan())
}

func TestLibraryService_DeleteLibrary(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	library := tier.addLibrary(1, "mine")
	other := tier.addLibrary(2, "theirs")

	// Two songs share a file inside the doomed library; a third file is
	// shared with a song in another library and must survive.
	shared := tier.addFile("dd44", 2)
	solo := tier.addFile("ee55", 1)
	crossTier := tier.addFile("ff66", 2)
	for _, f := range []*domain.File{shared, solo, crossTier} {
		seedBlob(t, store, f)
	}

	s1 := tier.addSong(library.ID, &shared.ID, "one")
	s2 := tier.addSong(library.ID, &shared.ID, "two")
	s3 := tier.addSong(library.ID, &solo.ID, "three")
	s4 := tier.addSong(library.ID, &crossTier.ID, "four")
	survivor := tier.addSong(other.ID, &crossTier.ID, "keeper")

	// Playlist entries pointing at doomed songs across two playlists.
	playlist := domain.NewPlaylist(1, "mix")
	require.NoError(t, tier.repos().Playlists.Create(context.Background(), playlist))
	for i, sid := range []uuid.UUID{s1.ID, s3.ID, survivor.ID} {
		require.NoError(t, tier.repos().Playlists.AddSong(context.Background(), &domain.PlaylistSong{
			PlaylistID: playlist.ID, SongID: sid, Position: i, AddedAt: time.Now().UTC(),
		}))
	}

	result, err := svc.DeleteLibrary(context.Background(), library.ID, nil)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.False(t, result.Partial())
	require.Equal(t, 4, result.DeletedSongs)
	require.Equal(t, 2, result.DeletedFiles) // shared + solo; crossTier survives
	require.Equal(t, int64(2), result.PlaylistRefsRemoved)

	// Library row gone; the other library untouched.
	_, err = tier.repos().Libraries.GetByID(context.Background(), library.ID)
	require.ErrorIs(t, err, domain.ErrLibraryNotFound)
	_, err = tier.repos().Libraries.GetByID(context.Background(), other.ID)
	require.NoError(t, err)

	// The cross-library file kept exactly one reference.
	got, err := tier.repos().Files.GetByID(context.Background(), crossTier.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.RefCount)

	// Doomed songs gone; the survivor's playlist entry intact.
	for _, sid := range []uuid.UUID{s1.ID, s2.ID, s3.ID, s4.ID} {
		_, err := tier.repos().Songs.GetByID(context.Background(), sid)
		require.ErrorIs(t, err, domain.ErrSongNotFound)
	}
	entries, err := tier.repos().Playlists.ListSongs(context.Background(), playlist.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, survivor.ID, entries[0].SongID)
}

func TestLibraryService_DeleteLibrary_PurgeFailureExcludedFromCount(t *testing.T) {
	tier := newFakeTier()
	inner := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, inner, false)

	library := tier.addLibrary(1, "mine")

	var files []*domain.File
	for _, h := range []string{"ba01", "ba02", "ba03"} {
		f := tier.addFile(h, 1)
		seedBlob(t, inner, f)
		files = append(files, f)
		tier.addSong(library.ID, &f.ID, "track "+h)
	}
	svc.store = &failingDeleteStore{Store: inner, failKey: files[1].StorageKey}

	result, err := svc.DeleteLibrary(context.Background(), library.ID, nil)
	require.NoError(t, err)

	// Three songs, one blob delete failure: two fully reclaimed, one error.
	require.True(t, result.Success)
	require.True(t, result.Partial())
	require.Equal(t, 2, result.DeletedSongs)
	require.Equal(t, 2, result.DeletedFiles)
	require.Len(t, result.Errors, 1)

	// Every song row is gone regardless; the failed purge left an orphan.
	got, err := tier.repos().Files.GetByID(context.Background(), files[1].ID)
	require.NoError(t, err)
	require.True(t, got.IsOrphan())
}

func TestLibraryService_DeleteLibrary_BestEffortPartialFailure(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	library := tier.addLibrary(1, "mine")
	f1 := tier.addFile("aa01", 1)
	f2 := tier.addFile("aa02", 1)
	seedBlob(t, store, f1)
	seedBlob(t, store, f2)

	bad := tier.addSong(library.ID, &f1.ID, "bad")
	good := tier.addSong(library.ID, &f2.ID, "good")
	tier.deleteSongErr[bad.ID] = errors.New("disk on fire")

	result, err := svc.DeleteLibrary(context.Background(), library.ID, nil)
	require.NoError(t, err)

	// The cascade pressed on: the library is gone, the failure is recorded.
	require.True(t, result.Success)
	require.True(t, result.Partial())
	require.Len(t, result.Errors, 1)
	require.Equal(t, bad.ID, result.Errors[0].SongID)
	require.Equal(t, 1, result.DeletedSongs)

	_, err = tier.repos().Libraries.GetByID(context.Background(), library.ID)
	require.ErrorIs(t, err, domain.ErrLibraryNotFound)
	_, err = tier.repos().Songs.GetByID(context.Background(), good.ID)
	require.ErrorIs(t, err, domain.ErrSongNotFound)
}

func TestLibraryService_DeleteLibrary_StrictAborts(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, true)

	library := tier.addLibrary(1, "mine")
	f1 := tier.addFile("ab01", 1)
	seedBlob(t, store, f1)
	bad := tier.addSong(library.ID, &f1.ID, "bad")
	tier.deleteSongErr[bad.ID] = errors.New("disk on fire")

	result, err := svc.DeleteLibrary(context.Background(), library.ID, nil)
	require.NoError(t, err)

	require.False(t, result.Success)
	require.ErrorIs(t, result.Err, ErrCascadeAborted)

	// The library row survives a strict abort.
	_, err = tier.repos().Libraries.GetByID(context.Background(), library.ID)
	require.NoError(t, err)
}

func TestLibraryService_DeleteLibrary_NotFound(t *testing.T) {
	tier := newFakeTier()
	svc := newLibraryService(tier, objectstore.NewMemoryStore(), false)

	_, err := svc.DeleteLibrary(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, domain.ErrLibraryNotFound)
}

func TestLibraryService_DeleteLibrary_Progress(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	library := tier.addLibrary(1, "mine")
	for i := 0; i < 3; i++ {
		file := tier.addFile(uuid.NewString(), 1)
		seedBlob(t, store, file)
		tier.addSong(library.ID, &file.ID, "song")
	}

	var updates []Progress
	result, err := svc.DeleteLibrary(context.Background(), library.ID, func(p Progress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	// Stages appear in order, and within a stage current never decreases.
	stageRank := map[ProgressStage]int{
		StageSongs: 0, StagePlaylistSongs: 1, StageDeletingSongs: 2, StageLibrary: 3, StageComplete: 4,
	}
	lastRank, lastCurrent := -1, 0
	for _, p := range updates {
		rank := stageRank[p.Stage]
		require.GreaterOrEqual(t, rank, lastRank)
		if rank != lastRank {
			lastCurrent = 0
		}
		require.GreaterOrEqual(t, p.Current, lastCurrent)
		require.LessOrEqual(t, p.Current, p.Total)
		lastRank, lastCurrent = rank, p.Current
	}
	require.Equal(t, StageComplete, updates[len(updates)-1].Stage)
}

func TestLibraryService_AddSong(t *testing.T) {
	tier := newFakeTier()
	svc := newLibraryService(tier, objectstore.NewMemoryStore(), false)

	library := tier.addLibrary(1, "mine")
	file := tier.addFile("ac01", 1)

	song, err := svc.AddSong(context.Background(), library.ID, file.ID, tags.Tags{
		Title: "Karma Police", Artist: "Radiohead", TrackNumber: 6,
	})
	require.NoError(t, err)
	require.Equal(t, "Karma Police", song.Title)

	count, err := tier.repos().Files.GetRefCount(context.Background(), file.ID)
	require.NoError(t, err)
	require.Equal(t, int32(2), count)
}

func TestLibraryService_DecrementFileRef(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()
	svc := newLibraryService(tier, store, false)

	file := tier.addFile("ad01", 2)
	seedBlob(t, store, file)

	purged, err := svc.DecrementFileRef(context.Background(), file.ID)
	require.NoError(t, err)
	require.False(t, purged)

	purged, err = svc.DecrementFileRef(context.Background(), file.ID)
	require.NoError(t, err)
	require.True(t, purged)

	// Releasing a reference to a missing file is a no-op.
	purged, err = svc.DecrementFileRef(context.Background(), file.ID)
	require.NoError(t, err)
	require.False(t, purged)
}

func TestGarbageCollector_ReclaimsOrphans(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()

	orphan := tier.addFile("ae01", 0)
	orphan.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	seedBlob(t, store, orphan)

	fresh := tier.addFile("ae02", 0) // inside grace period
	seedBlob(t, store, fresh)

	live := tier.addFile("ae03", 1)
	seedBlob(t, store, live)

	gc := NewGarbageCollector(tier.repos().Files, store, lock.NewNoOpLocker(), nil, zerolog.Nop(), GCConfig{
		GracePeriod: 24 * time.Hour,
		BatchSize:   100,
		Interval:    time.Hour,
	})

	result := gc.RunOnce(context.Background())
	require.Equal(t, 1, result.FilesDeleted)
	require.Equal(t, 0, result.Errors)

	_, err := tier.repos().Files.GetByID(context.Background(), orphan.ID)
	require.ErrorIs(t, err, domain.ErrFileNotFound)
	_, err = tier.repos().Files.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	_, err = tier.repos().Files.GetByID(context.Background(), live.ID)
	require.NoError(t, err)
}

func TestGarbageCollector_DryRun(t *testing.T) {
	tier := newFakeTier()
	store := objectstore.NewMemoryStore()

	orphan := tier.addFile("af01", 0)
	orphan.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	seedBlob(t, store, orphan)

	gc := NewGarbageCollector(tier.repos().Files, store, lock.NewNoOpLocker(), nil, zerolog.Nop(), GCConfig{
		GracePeriod: 24 * time.Hour,
		BatchSize:   100,
		Interval:    time.Hour,
		DryRun:      true,
	})

	result := gc.RunOnce(context.Background())
	require.Equal(t, 1, result.FilesDeleted)

	// Nothing actually deleted.
	_, err := tier.repos().Files.GetByID(context.Background(), orphan.ID)
	require.NoError(t, err)
}
