package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

// libraryRepository implements repository.LibraryRepository on PostgreSQL.
type libraryRepository struct {
	db *DB
}

// NewLibraryRepository creates a new PostgreSQL library repository.
func NewLibraryRepository(db *DB) repository.LibraryRepository {
	return &libraryRepository{db: db}
}

// Create inserts a new library.
func (r *libraryRepository) Create(ctx context.Context, library *domain.Library) error {
	query := `
		INSERT INTO libraries (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		library.ID,
		library.OwnerID,
		library.Name,
		library.CreatedAt,
		library.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create library: %w", err)
	}

	return nil
}

// GetByID retrieves a library by ID.
func (r *libraryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Library, error) {
	query := `SELECT id, owner_id, name, created_at, updated_at FROM libraries WHERE id = $1`

	library := &domain.Library{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&library.ID,
		&library.OwnerID,
		&library.Name,
		&library.CreatedAt,
		&library.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLibraryNotFound
		}
		return nil, fmt.Errorf("failed to get library by id: %w", err)
	}

	return library, nil
}

// Delete removes the library row.
func (r *libraryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrLibraryNotFound
	}

	return nil
}

// Ensure libraryRepository implements repository.LibraryRepository
var _ repository.LibraryRepository = (*libraryRepository)(nil)
