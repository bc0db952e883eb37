// Package objectstore is the narrow adapter over the blob service holding
// audio payloads. Harmonium consumes bulk binary storage only through this
// interface; the file store's reference counting decides when keys die.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Metadata describes a stored object without its body.
type Metadata struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the blob service adapter.
//
// Delete must tolerate absent keys: the store is treated as an
// eventually-consistent, idempotent-delete resource, so deleting a key that
// is already gone is success, not error.
type Store interface {
	// Put writes the payload under the given key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Get retrieves the full payload. Returns ErrNotFound for absent keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// StreamRange retrieves bytes [start, end] inclusive, for seek and
	// resume during playback.
	StreamRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)

	// Delete removes the payload. Absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a key holds an object.
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns object metadata without the body.
	GetMetadata(ctx context.Context, key string) (*Metadata, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
