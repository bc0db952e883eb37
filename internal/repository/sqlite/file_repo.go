package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

const fileColumns = `id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at`

// fileRepository implements repository.FileRepository for SQLite.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new SQLite file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	file := &domain.File{}
	var id, createdAt string

	err := row.Scan(
		&id,
		&file.Hash,
		&file.StorageKey,
		&file.Size,
		&file.MimeType,
		&file.Duration,
		&file.Bitrate,
		&file.SampleRate,
		&file.ChannelCount,
		&file.RefCount,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	file.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid file id %q: %w", id, err)
	}
	file.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return file, nil
}

// Create inserts a new file row with ref_count = 1.
func (r *fileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
		INSERT INTO files (id, hash, storage_key, size, mime_type, duration, bitrate, sample_rate, channel_count, ref_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.ID.String(),
		file.Hash,
		file.StorageKey,
		file.Size,
		file.MimeType,
		file.Duration,
		file.Bitrate,
		file.SampleRate,
		file.ChannelCount,
		file.RefCount,
		file.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateHash
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// Upsert inserts the file or increments the existing row's ref_count.
// The mirror database runs with a single writer, so check-then-write is
// race-free here.
func (r *fileRepository) Upsert(ctx context.Context, file *domain.File) (*domain.File, bool, error) {
	existing, err := r.GetByHash(ctx, file.Hash)
	if errors.Is(err, domain.ErrFileNotFound) {
		if createErr := r.Create(ctx, file); createErr != nil {
			return nil, false, createErr
		}
		return file, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	updated, err := r.IncrementRefByHash(ctx, existing.Hash)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// GetByID retrieves a file by its surrogate key.
func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file by id: %w", err)
	}

	return file, nil
}

// GetByHash retrieves a file by its content hash.
func (r *fileRepository) GetByHash(ctx context.Context, hash string) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE hash = ?`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file by hash: %w", err)
	}

	return file, nil
}

// IncrementRef atomically increments the reference count.
func (r *fileRepository) IncrementRef(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE files SET ref_count = ref_count + 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to increment ref count: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
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
		WHERE hash = ?
		RETURNING ` + fileColumns

	file, err := scanFile(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if isNoRows(err) {
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
		WHERE id = ?
		RETURNING ref_count
	`

	var newRefCount int32
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&newRefCount)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrFileNotFound
		}
		return 0, fmt.Errorf("failed to decrement ref count: %w", err)
	}

	return newRefCount, nil
}

// GetRefCount returns the current reference count for a file.
func (r *fileRepository) GetRefCount(ctx context.Context, id uuid.UUID) (int32, error) {
	var refCount int32
	err := r.db.QueryRowContext(ctx, `SELECT ref_count FROM files WHERE id = ?`, id.String()).Scan(&refCount)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrFileNotFound
		}
		return 0, fmt.Errorf("failed to get ref count: %w", err)
	}
	return refCount, nil
}

// Delete deletes a file row. Rows still holding references are left alone.
func (r *fileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ? AND ref_count <= 0`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}

// ListOrphans returns files with ref_count <= 0 that are older than the grace period.
func (r *fileRepository) ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE ref_count <= 0 AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	cutoff := time.Now().UTC().Add(-gracePeriod).Format(time.RFC3339)
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
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
