package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

// libraryRepository implements repository.LibraryRepository for SQLite.
type libraryRepository struct {
	db *DB
}

// NewLibraryRepository creates a new SQLite library repository.
func NewLibraryRepository(db *DB) repository.LibraryRepository {
	return &libraryRepository{db: db}
}

// Create inserts a new library.
func (r *libraryRepository) Create(ctx context.Context, library *domain.Library) error {
	query := `
		INSERT INTO libraries (id, owner_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		library.ID.String(),
		library.OwnerID,
		library.Name,
		library.CreatedAt.UTC().Format(time.RFC3339),
		library.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create library: %w", err)
	}

	return nil
}

// GetByID retrieves a library by ID.
func (r *libraryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Library, error) {
	query := `SELECT id, owner_id, name, created_at, updated_at FROM libraries WHERE id = ?`

	library := &domain.Library{}
	var libID, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&libID,
		&library.OwnerID,
		&library.Name,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLibraryNotFound
		}
		return nil, fmt.Errorf("failed to get library by id: %w", err)
	}

	library.ID, err = uuid.Parse(libID)
	if err != nil {
		return nil, fmt.Errorf("invalid library id %q: %w", libID, err)
	}
	library.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	library.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return library, nil
}

// Delete removes the library row.
func (r *libraryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrLibraryNotFound
	}

	return nil
}

// Ensure libraryRepository implements repository.LibraryRepository
var _ repository.LibraryRepository = (*libraryRepository)(nil)
