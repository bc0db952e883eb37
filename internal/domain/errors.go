// Package domain contains the core business entities for Harmonium.
package domain

import "errors"

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ErrFileNotFound indicates the requested file row does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrDuplicateHash indicates a file with the same content hash already
	// exists. Raised by the create path when two novel uploads of identical
	// bytes race; recovered internally by falling back to the increment path.
	ErrDuplicateHash = errors.New("file with this content hash already exists")

	// ErrSongNotFound indicates the requested song does not exist.
	ErrSongNotFound = errors.New("song not found")

	// ErrLibraryNotFound indicates the requested library does not exist.
	ErrLibraryNotFound = errors.New("library not found")

	// ErrPlaylistNotFound indicates the requested playlist does not exist.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrSongNotInLibrary indicates the song does not belong to the library
	// the caller named.
	ErrSongNotInLibrary = errors.New("song does not belong to library")
)
