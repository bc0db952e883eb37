package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

const fileColumns = `id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at`

// fileRepository implements repository.FileRepository on PostgreSQL.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new PostgreSQL file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

func scanFile(row pgx.Row) (*domain.File, error) {
	file := &domain.File{}
	err := row.Scan(
		&file.ID,
		&file.Hash,
		&file.StorageKey,
		&file.Size,
		&file.MimeType,
		&file.Duration,
		&file.Bitrate,
		&file.SampleRate,
		&file.ChannelCount,
		&file.RefCount,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Create inserts a new file row with ref_count = 1.
// A unique violation on the hash column maps to domain.ErrDuplicateHash so
// callers can fall back to incrementing the existing row.
func (r *fileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
		INSERT INTO files (id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		file.ID,
		file.Hash,
		file.StorageKey,
		file.Size,
		file.MimeType,
		file.Duration,
		file.Bitrate,
		file.SampleRate,
		file.ChannelCount,
		file.RefCount,
		file.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateHash
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// Upsert inserts the file or increments the existing row's ref_count in one
// atomic statement. xmax = 0 distinguishes a fresh insert from an update.
func (r *fileRepository) Upsert(ctx context.Context, file *domain.File) (*domain.File, bool, error) {
	query := `
		INSERT INTO files (id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hash) DO UPDATE
		SET ref_count = files.ref_count + 1
		RETURNING ` + fileColumns + `, (xmax = 0) AS is_new`

	stored := &domain.File{}
	var isNew bool
	err := r.db.Pool.QueryRow(ctx, query,
		file.ID,
		file.Hash,
		file.StorageKey,
		file.Size,
		file.MimeType,
		file.Duration,
		file.Bitrate,
		file.SampleRate,
		file.ChannelCount,
		file.RefCount,
		file.CreatedAt,
	).Scan(
		&stored.ID,
		&stored.Hash,
		&stored.StorageKey,
		&stored.Size,
		&stored.MimeType,
		&stored.Duration,
		&stored.Bitrate,
		&stored.SampleRate,
		&stored.ChannelCount,
		&stored.RefCount,
		&stored.CreatedAt,
		&isNew,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert file: %w", err)
	}

	return stored, isNew, nil
}

// GetByID retrieves a file by its surrogate key.
func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	file, err := scanFile(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file by id: %w", err)
	}

	return file, nil
}

// GetByHash retrieves a file by its content hash.
func (r *fileRepository) GetByHash(ctx context.Context, hash string) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE hash = $1`

	file, err := scanFile(r.db.Pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file by hash: %w", err)
	}

	return file, nil
}

// IncrementRef atomically increments the reference count.
func (r *fileRepository) IncrementRef(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE files SET ref_count = ref_count + 1 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment ref count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}

// IncrementRefByHash atomically increments the reference count of the file
// with the given hash and returns the updated row in the same statement.
func (r *fileRepository) IncrementRefByHash(ctx context.Context, hash string) (*domain.File, error) {
	query := `
		UPDATE files
		SET ref_count = ref_count + 1
		WHERE hash = $1
		RETURNING ` + fileColumns

	file, err := scanFile(r.db.Pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to increment ref count by hash: %w", err)
	}

	return file, nil
}

// DecrementRef atomically decrements the reference count and returns the new
// value in the same statement.
func (r *fileRepository) DecrementRef(ctx context.Context, id uuid.UUID) (int32, error) {
	query := `
		UPDATE files
		SET ref_count = ref_count - 1
		WHERE id = $1
		RETURNING ref_count
	`

	var newRefCount int32
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&newRefCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrFileNotFound
		}
		return 0, fmt.Errorf("failed to decrement ref count: %w", err)
	}

	return newRefCount, nil
}

// GetRefCount returns the current reference count for a file.
func (r *fileRepository) GetRefCount(ctx context.Context, id uuid.UUID) (int32, error) {
	var refCount int32
	err := r.db.Pool.QueryRow(ctx, `SELECT ref_count FROM files WHERE id = $1`, id).Scan(&refCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrFileNotFound
		}
		return 0, fmt.Errorf("failed to get ref count: %w", err)
	}
	return refCount, nil
}

// Delete deletes a file row. Rows still holding references are left alone.
func (r *fileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM files WHERE id = $1 AND ref_count <= 0`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}

// ListOrphans returns files with ref_count <= 0 that are older than the grace period.
func (r *fileRepository) ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE ref_count <= 0 AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	cutoff := time.Now().UTC().Add(-gracePeriod)
	rows, err := r.db.Pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan files: %w", err)
	}
	defer rows.Close()

	var files []*domain.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return files, nil
}

// Ensure fileRepository implements repository.FileRepository
var _ repository.FileRepository = (*fileRepository)(nil)
