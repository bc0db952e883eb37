// Package domain contains the core business entities for Harmonium.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// File represents a canonical, content-addressable audio payload.
// Files are keyed by the SHA-256 hash of their bytes, enabling deduplication:
// any number of songs, across any number of users, may reference one File.
type File struct {
	// ID is the surrogate key referenced by Song rows.
	ID uuid.UUID `json:"id"`

	// Hash is the SHA-256 hash of the content (64 hex characters).
	// Unique across all File rows on a given tier.
	Hash string `json:"hash"`

	// StorageKey is the object-store key the payload lives under.
	// Format: audio/{first2chars}/{next2chars}/{fullhash}{ext}
	StorageKey string `json:"storage_key"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// MimeType is the detected or declared content type.
	MimeType string `json:"mime_type"`

	// Physical properties of the audio stream. Zero values mean
	// "unknown" (extraction is best-effort).
	Duration     float64 `json:"duration"`
	Bitrate      int     `json:"bitrate"`
	SampleRate   int     `json:"sample_rate"`
	ChannelCount int     `json:"channel_count"`

	// RefCount is the number of Song rows referencing this file.
	// A File whose RefCount reaches zero is purged together with its blob.
	RefCount int32 `json:"ref_count"`

	// CreatedAt is when the content was first uploaded.
	CreatedAt time.Time `json:"created_at"`
}

// NewFile creates a File for freshly uploaded content with a single reference.
func NewFile(hash, mimeType string, size int64) *File {
	return &File{
		ID:         uuid.New(),
		Hash:       hash,
		StorageKey: StorageKeyFor(hash, mimeType),
		Size:       size,
		MimeType:   mimeType,
		RefCount:   1,
		CreatedAt:  time.Now().UTC(),
	}
}

// IsOrphan returns true if no songs reference this file.
func (f *File) IsOrphan() bool {
	return f.RefCount <= 0
}

// CanGarbageCollect returns true if the file is orphaned and old enough.
// The grace period protects uploads that have created the File row but not
// yet attached a Song to it.
func (f *File) CanGarbageCollect(gracePeriod time.Duration) bool {
	if !f.IsOrphan() {
		return false
	}
	return time.Since(f.CreatedAt) > gracePeriod
}

// StorageKeyFor derives the object-store key for a content hash using
// 2-level sharding, with a file extension guessed from the mime type.
//
// Example:
//
//	hash: "abcdef1234567890...", mimeType: "audio/mpeg"
//	result: "audio/ab/cd/abcdef1234567890....mp3"
func StorageKeyFor(hash, mimeType string) string {
	ext := ExtensionForMime(mimeType)
	if len(hash) < 4 {
		return fmt.Sprintf("audio/%s%s", hash, ext)
	}
	return fmt.Sprintf("audio/%s/%s/%s%s", hash[0:2], hash[2:4], hash, ext)
}

// ExtensionForMime guesses a file extension for common audio mime types.
func ExtensionForMime(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/opus":
		return ".opus"
	default:
		return ".bin"
	}
}
