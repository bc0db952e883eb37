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

const songColumns = `id, library_id, file_id, cache_key, title, artist, album, album_artist, genre, composer, year, track_number, disc_number, created_at, updated_at`

// songRepository implements repository.SongRepository on PostgreSQL.
type songRepository struct {
	db *DB
}

// NewSongRepository creates a new PostgreSQL song repository.
func NewSongRepository(db *DB) repository.SongRepository {
	return &songRepository{db: db}
}

func scanSong(row pgx.Row) (*domain.Song, error) {
	song := &domain.Song{}
	err := row.Scan(
		&song.ID,
		&song.LibraryID,
		&song.FileID,
		&song.CacheKey,
		&song.Title,
		&song.Artist,
		&song.Album,
		&song.AlbumArtist,
		&song.Genre,
		&song.Composer,
		&song.Year,
		&song.TrackNumber,
		&song.DiscNumber,
		&song.CreatedAt,
		&song.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return song, nil
}

// Create inserts a new song row.
func (r *songRepository) Create(ctx context.Context, song *domain.Song) error {
	query := `
		INSERT INTO songs (id, library_id, file_id, cache_key, title, artist, album, album_artist, genre, composer, year, track_number, disc_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		song.ID,
		song.LibraryID,
		song.FileID,
		song.CacheKey,
		song.Title,
		song.Artist,
		song.Album,
		song.AlbumArtist,
		song.Genre,
		song.Composer,
		song.Year,
		song.TrackNumber,
		song.DiscNumber,
		song.CreatedAt,
		song.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create song: %w", err)
	}

	return nil
}

// GetByID retrieves a song by ID.
func (r *songRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = $1`

	song, err := scanSong(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSongNotFound
		}
		return nil, fmt.Errorf("failed to get song by id: %w", err)
	}

	return song, nil
}

// ListByLibrary returns all songs in a library, in insertion order.
func (r *songRepository) ListByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE library_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Pool.Query(ctx, query, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs by library: %w", err)
	}
	defer rows.Close()

	var songs []*domain.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating songs: %w", err)
	}

	return songs, nil
}

// CountByFile returns the number of songs referencing a file.
func (r *songRepository) CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM songs WHERE file_id = $1`, fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count songs by file: %w", err)
	}
	return count, nil
}

// DeleteWithFileRef deletes the song row and decrements its file's ref_count
// in a single transaction. The returned file reflects the row as of the
// decrement; (nil, nil) means the song carried no file reference.
func (r *songRepository) DeleteWithFileRef(ctx context.Context, songID uuid.UUID) (*domain.File, error) {
	var file *domain.File

	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var fileID *uuid.UUID
		err := tx.QueryRow(ctx, `DELETE FROM songs WHERE id = $1 RETURNING file_id`, songID).Scan(&fileID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrSongNotFound
			}
			return fmt.Errorf("failed to delete song: %w", err)
		}

		if fileID == nil {
			return nil
		}

		query := `
			UPDATE files
			SET ref_count = ref_count - 1
			WHERE id = $1
			RETURNING ` + fileColumns

		file, err = scanFile(tx.QueryRow(ctx, query, *fileID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrFileNotFound
			}
			return fmt.Errorf("failed to decrement file ref count: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return file, nil
}

// Ensure songRepository implements repository.SongRepository
var _ repository.SongRepository = (*songRepository)(nil)
