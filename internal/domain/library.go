package domain

import (
	"time"

	"github.com/google/uuid"
)

// Library is a user-owned collection of songs. Deleting a library cascades
// through its songs, their playlist memberships, and their file references.
type Library struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLibrary creates a Library owned by the given user.
func NewLibrary(ownerID int64, name string) *Library {
	now := time.Now().UTC()
	return &Library{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Playlist is an ordered selection of songs, possibly spanning libraries.
type Playlist struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlaylist creates a Playlist owned by the given user.
func NewPlaylist(ownerID int64, name string) *Playlist {
	now := time.Now().UTC()
	return &Playlist{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PlaylistSong is the playlist membership join row.
type PlaylistSong struct {
	PlaylistID uuid.UUID `json:"playlist_id"`
	SongID     uuid.UUID `json:"song_id"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"added_at"`
}
