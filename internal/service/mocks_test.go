package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

// fakeTier is an in-memory implementation of one tier's repository set,
// with per-operation error injection.
type fakeTier struct {
	mu sync.Mutex

	files     map[uuid.UUID]*domain.File
	byHash    map[string]uuid.UUID
	songs     map[uuid.UUID]*domain.Song
	songOrder []uuid.UUID
	libraries map[uuid.UUID]*domain.Library
	playlists map[uuid.UUID]*domain.Playlist
	refs      []*domain.PlaylistSong

	// error injection
	deleteSongErr   map[uuid.UUID]error
	playlistRefsErr error
	listSongsErr    error
	deleteLibErr    error
	fileDeleteErr   map[uuid.UUID]error
}

func newFakeTier() *fakeTier {
	return &fakeTier{
		files:         make(map[uuid.UUID]*domain.File),
		byHash:        make(map[string]uuid.UUID),
		songs:         make(map[uuid.UUID]*domain.Song),
		libraries:     make(map[uuid.UUID]*domain.Library),
		playlists:     make(map[uuid.UUID]*domain.Playlist),
		deleteSongErr: make(map[uuid.UUID]error),
		fileDeleteErr: make(map[uuid.UUID]error),
	}
}

func (f *fakeTier) repos() *repository.Repositories {
	return &repository.Repositories{
		Files:     (*fakeFileRepo)(f),
		Songs:     (*fakeSongRepo)(f),
		Libraries: (*fakeLibraryRepo)(f),
		Playlists: (*fakePlaylistRepo)(f),
	}
}

// addLibrary seeds a library.
func (f *fakeTier) addLibrary(ownerID int64, name string) *domain.Library {
	library := domain.NewLibrary(ownerID, name)
	f.libraries[library.ID] = library
	return library
}

// addFile seeds a file with the given ref count.
func (f *fakeTier) addFile(hash string, refCount int32) *domain.File {
	file := domain.NewFile(hash, "audio/mpeg", 100)
	file.RefCount = refCount
	f.files[file.ID] = file
	f.byHash[hash] = file.ID
	return file
}

// addSong seeds a song referencing a file (fileID may be uuid.Nil for legacy).
func (f *fakeTier) addSong(libraryID uuid.UUID, fileID *uuid.UUID, title string) *domain.Song {
	song := &domain.Song{
		ID:        uuid.New(),
		LibraryID: libraryID,
		FileID:    fileID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.songs[song.ID] = song
	f.songOrder = append(f.songOrder, song.ID)
	return song
}

// =============================================================================
// FileRepository
// =============================================================================

type fakeFileRepo fakeTier

func (f *fakeFileRepo) Create(ctx context.Context, file *domain.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byHash[file.Hash]; exists {
		return domain.ErrDuplicateHash
	}
	clone := *file
	f.files[file.ID] = &clone
	f.byHash[file.Hash] = file.ID
	return nil
}

func (f *fakeFileRepo) Upsert(ctx context.Context, file *domain.File) (*domain.File, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, exists := f.byHash[file.Hash]; exists {
		existing := f.files[id]
		existing.RefCount++
		clone := *existing
		return &clone, false, nil
	}
	clone := *file
	f.files[file.ID] = &clone
	f.byHash[file.Hash] = file.ID
	out := clone
	return &out, true, nil
}

func (f *fakeFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	clone := *file
	return &clone, nil
}

func (f *fakeFileRepo) GetByHash(ctx context.Context, hash string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	clone := *f.files[id]
	return &clone, nil
}

func (f *fakeFileRepo) IncrementRef(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return domain.ErrFileNotFound
	}
	file.RefCount++
	return nil
}

func (f *fakeFileRepo) IncrementRefByHash(ctx context.Context, hash string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	file := f.files[id]
	file.RefCount++
	clone := *file
	return &clone, nil
}

func (f *fakeFileRepo) DecrementRef(ctx context.Context, id uuid.UUID) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return 0, domain.ErrFileNotFound
	}
	file.RefCount--
	return file.RefCount, nil
}

func (f *fakeFileRepo) GetRefCount(ctx context.Context, id uuid.UUID) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return 0, domain.ErrFileNotFound
	}
	return file.RefCount, nil
}

func (f *fakeFileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fileDeleteErr[id]; err != nil {
		return err
	}
	file, ok := f.files[id]
	if !ok || file.RefCount > 0 {
		return domain.ErrFileNotFound
	}
	delete(f.byHash, file.Hash)
	delete(f.files, id)
	return nil
}

func (f *fakeFileRepo) ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orphans []*domain.File
	cutoff := time.Now().UTC().Add(-gracePeriod)
	for _, file := range f.files {
		if file.RefCount <= 0 && file.CreatedAt.Before(cutoff) {
			clone := *file
			orphans = append(orphans, &clone)
			if len(orphans) == limit {
				break
			}
		}
	}
	return orphans, nil
}

// =============================================================================
// SongRepository
// =============================================================================

type fakeSongRepo fakeTier

func (f *fakeSongRepo) Create(ctx context.Context, song *domain.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *song
	f.songs[song.ID] = &clone
	f.songOrder = append(f.songOrder, song.ID)
	return nil
}

func (f *fakeSongRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	song, ok := f.songs[id]
	if !ok {
		return nil, domain.ErrSongNotFound
	}
	clone := *song
	return &clone, nil
}

func (f *fakeSongRepo) ListByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSongsErr != nil {
		return nil, f.listSongsErr
	}
	var songs []*domain.Song
	for _, id := range f.songOrder {
		song, ok := f.songs[id]
		if ok && song.LibraryID == libraryID {
			clone := *song
			songs = append(songs, &clone)
		}
	}
	return songs, nil
}

func (f *fakeSongRepo) CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, song := range f.songs {
		if song.FileID != nil && *song.FileID == fileID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSongRepo) DeleteWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteSongErr[songID]; err != nil {
		return nil, err
	}
	song, ok := f.songs[songID]
	if !ok {
		return nil, domain.ErrSongNotFound
	}
	delete(f.songs, songID)
	if song.FileID == nil {
		return nil, nil
	}
	file, ok := f.files[*song.FileID]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	file.RefCount--
	clone := *file
	return &clone, nil
}

// =============================================================================
// LibraryRepository
// =============================================================================

type fakeLibraryRepo fakeTier

func (f *fakeLibraryRepo) Create(ctx context.Context, library *domain.Library) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *library
	f.libraries[library.ID] = &clone
	return nil
}

func (f *fakeLibraryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	library, ok := f.libraries[id]
	if !ok {
		return nil, domain.ErrLibraryNotFound
	}
	clone := *library
	return &clone, nil
}

func (f *fakeLibraryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteLibErr != nil {
		return f.deleteLibErr
	}
	if _, ok := f.libraries[id]; !ok {
		return domain.ErrLibraryNotFound
	}
	delete(f.libraries, id)
	return nil
}

// =============================================================================
// PlaylistRepository
// =============================================================================

type fakePlaylistRepo fakeTier

func (f *fakePlaylistRepo) Create(ctx context.Context, playlist *domain.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *playlist
	f.playlists[playlist.ID] = &clone
	return nil
}

func (f *fakePlaylistRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	playlist, ok := f.playlists[id]
	if !ok {
		return nil, domain.ErrPlaylistNotFound
	}
	clone := *playlist
	return &clone, nil
}

func (f *fakePlaylistRepo) AddSong(ctx context.Context, ps *domain.PlaylistSong) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *ps
	f.refs = append(f.refs, &clone)
	return nil
}

func (f *fakePlaylistRepo) ListSongs(ctx context.Context, playlistID uuid.UUID) ([]*domain.PlaylistSong, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []*domain.PlaylistSong
	for _, ref := range f.refs {
		if ref.PlaylistID == playlistID {
			clone := *ref
			entries = append(entries, &clone)
		}
	}
	return entries, nil
}

func (f *fakePlaylistRepo) DeleteRefsBySongs(ctx context.Context, songIDs []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playlistRefsErr != nil {
		return 0, f.playlistRefsErr
	}
	targets := make(map[uuid.UUID]bool, len(songIDs))
	for _, id := range songIDs {
		targets[id] = true
	}
	var kept []*domain.PlaylistSong
	var removed int64
	for _, ref := range f.refs {
		if targets[ref.SongID] {
			removed++
			continue
		}
		kept = append(kept, ref)
	}
	f.refs = kept
	return removed, nil
}

func (f *fakePlaylistRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playlists[id]; !ok {
		return domain.ErrPlaylistNotFound
	}
	delete(f.playlists, id)
	var kept []*domain.PlaylistSong
	for _, ref := range f.refs {
		if ref.PlaylistID != id {
			kept = append(kept, ref)
		}
	}
	f.refs = kept
	return nil
}

// Ensure fakes satisfy the repository interfaces
var (
	_ repository.FileRepository     = (*fakeFileRepo)(nil)
	_ repository.SongRepository     = (*fakeSongRepo)(nil)
	_ repository.LibraryRepository  = (*fakeLibraryRepo)(nil)
	_ repository.PlaylistRepository = (*fakePlaylistRepo)(nil)
)
