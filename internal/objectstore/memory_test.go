package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("audio payload")
	err := store.Put(ctx, "audio/ab/cd/abcd.mp3", bytes.NewReader(data), int64(len(data)), "audio/mpeg")
	require.NoError(t, err)

	rc, err := store.Get(ctx, "audio/ab/cd/abcd.mp3")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, got)

	md, err := store.GetMetadata(ctx, "audio/ab/cd/abcd.mp3")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), md.Size)
	require.Equal(t, "audio/mpeg", md.ContentType)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, IsNotFound(err))
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("x")
	require.NoError(t, store.Put(ctx, "k", bytes.NewReader(data), 1, "audio/mpeg"))
	require.NoError(t, store.Delete(ctx, "k"))

	// Second delete of the same key must still succeed.
	require.NoError(t, store.Delete(ctx, "k"))

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryStore_StreamRange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, "k", bytes.NewReader(data), int64(len(data)), "audio/mpeg"))

	rc, err := store.StreamRange(ctx, "k", 2, 5)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("2345"), got)

	// Range end past the object is clamped, matching HTTP range semantics.
	rc, err = store.StreamRange(ctx, "k", 8, 100)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("89"), got)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, key := range []string{"audio/aa/bb/one.mp3", "audio/cc/dd/two.mp3", "covers/one.jpg"} {
		require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("x")), 1, "application/octet-stream"))
	}

	keys, err := store.List(ctx, "audio/")
	require.NoError(t, err)
	require.Equal(t, []string{"audio/aa/bb/one.mp3", "audio/cc/dd/two.mp3"}, keys)
}
