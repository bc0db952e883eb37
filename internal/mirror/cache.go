// Package mirror implements the client-side offline tier: an embedded SQLite
// catalog mirroring the canonical store, plus a binary cache of downloaded
// audio keyed by stream URL.
package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCacheMiss indicates the requested entry is not in the cache.
var ErrCacheMiss = errors.New("cache entry not found")

// BinaryCache stores downloaded audio binaries keyed by stream URL.
// Delete of an absent key succeeds: the platform may evict entries on its
// own and cleanup paths must not care.
type BinaryCache interface {
	// Put stores a binary under the given key.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves a binary. Returns ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an entry. Absent keys are a success.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an entry is cached.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Filesystem cache
// =============================================================================

// FilesystemCache stores binaries as files named by the SHA-256 of their key.
type FilesystemCache struct {
	dir string
}

// NewFilesystemCache creates a cache rooted at dir, creating it if needed.
func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FilesystemCache{dir: dir}, nil
}

func (c *FilesystemCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Put stores a binary under the given key.
func (c *FilesystemCache) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := c.pathFor(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Get retrieves a binary.
func (c *FilesystemCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, nil
}

// Delete removes an entry. Absent keys are a success.
func (c *FilesystemCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(c.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Exists reports whether an entry is cached.
func (c *FilesystemCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// In-memory cache (tests)
// =============================================================================

// MemoryCache is an in-memory BinaryCache for tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte

	// DeleteCount tracks Delete calls per key, including misses.
	DeleteCount map[string]int
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string][]byte),
		DeleteCount: make(map[string]int),
	}
}

// Put stores a binary under the given key.
func (c *MemoryCache) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.entries[key] = buf
	return nil
}

// Get retrieves a binary.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Delete removes an entry. Absent keys are a success.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeleteCount[key]++
	delete(c.entries, key)
	return nil
}

// Exists reports whether an entry is cached.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok, nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure implementations satisfy BinaryCache
var (
	_ BinaryCache = (*FilesystemCache)(nil)
	_ BinaryCache = (*MemoryCache)(nil)
)
