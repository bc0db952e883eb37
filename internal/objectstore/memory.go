package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. It backs tests and single-process
// development runs; the delete semantics match the S3 adapter (absent keys
// are success).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// PutCount tracks Put calls so tests can assert that deduplicated
	// uploads never write a second blob.
	PutCount int
}

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put writes the payload under the given key.
func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{
		data:         data,
		contentType:  contentType,
		lastModified: time.Now().UTC(),
	}
	s.PutCount++
	return nil
}

// Get retrieves the full payload.
func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// StreamRange retrieves bytes [start, end] inclusive.
func (s *MemoryStore) StreamRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	if start < 0 || start >= int64(len(obj.data)) || end < start {
		return nil, fmt.Errorf("invalid range %d-%d for object of %d bytes", start, end, len(obj.data))
	}
	if end >= int64(len(obj.data)) {
		end = int64(len(obj.data)) - 1
	}
	return io.NopCloser(bytes.NewReader(obj.data[start : end+1])), nil
}

// Delete removes the payload. Absent keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Exists checks whether a key holds an object.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// GetMetadata returns object metadata without the body.
func (s *MemoryStore) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Metadata{
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// List returns all keys under the given prefix, sorted.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
