package domain

import (
	"time"

	"github.com/google/uuid"
)

// Song is a logical library entry pointing at a canonical File.
// Many songs may share one file; the file's RefCount tracks how many.
type Song struct {
	ID        uuid.UUID `json:"id"`
	LibraryID uuid.UUID `json:"library_id"`

	// FileID references the canonical File. Nil for legacy rows created
	// before content-addressable storage; those own their cached payload
	// outright and bypass reference counting.
	FileID *uuid.UUID `json:"file_id,omitempty"`

	// CacheKey is the stream URL the client tier's binary cache is keyed
	// by. Only populated on the mirror; legacy rows rely on it for cleanup.
	CacheKey *string `json:"cache_key,omitempty"`

	// Descriptive tags, best-effort.
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	DiscNumber  int    `json:"disc_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSong creates a Song referencing the given file.
func NewSong(libraryID, fileID uuid.UUID, title string) *Song {
	now := time.Now().UTC()
	fid := fileID
	return &Song{
		ID:        uuid.New(),
		LibraryID: libraryID,
		FileID:    &fid,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsLegacy reports whether the song predates the dedup scheme.
func (s *Song) IsLegacy() bool {
	return s.FileID == nil
}
