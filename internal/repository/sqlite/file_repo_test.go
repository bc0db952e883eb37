package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harmonium-app/harmonium/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestFileRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	file := domain.NewFile("da01", "audio/mpeg", 100)

	stored, isNew, err := repo.Upsert(ctx, file)
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, int32(1), stored.RefCount)

	// Upserting the same hash again increments instead of inserting.
	duplicate := domain.NewFile("da01", "audio/mpeg", 100)
	stored2, isNew, err := repo.Upsert(ctx, duplicate)
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, file.ID, stored2.ID)
	require.Equal(t, int32(2), stored2.RefCount)
}

func TestFileRepository_CreateDuplicateHash(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.NewFile("db01", "audio/mpeg", 100)))

	err := repo.Create(ctx, domain.NewFile("db01", "audio/mpeg", 100))
	require.ErrorIs(t, err, domain.ErrDuplicateHash)
}

func TestFileRepository_RefCounting(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	file := domain.NewFile("dc01", "audio/flac", 2048)
	require.NoError(t, repo.Create(ctx, file))

	updated, err := repo.IncrementRefByHash(ctx, "dc01")
	require.NoError(t, err)
	require.Equal(t, int32(2), updated.RefCount)

	count, err := repo.DecrementRef(ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), count)

	// Delete refuses rows still holding references.
	err = repo.Delete(ctx, file.ID)
	require.ErrorIs(t, err, domain.ErrFileNotFound)

	count, err = repo.DecrementRef(ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, int32(0), count)

	require.NoError(t, repo.Delete(ctx, file.ID))
	_, err = repo.GetByID(ctx, file.ID)
	require.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestFileRepository_ListOrphans(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	old := domain.NewFile("dd01", "audio/mpeg", 100)
	old.RefCount = 0
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	fresh := domain.NewFile("dd02", "audio/mpeg", 100)
	fresh.RefCount = 0
	require.NoError(t, repo.Create(ctx, fresh))

	live := domain.NewFile("dd03", "audio/mpeg", 100)
	require.NoError(t, repo.Create(ctx, live))

	orphans, err := repo.ListOrphans(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, old.ID, orphans[0].ID)
}
