package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

const songColumns = `id, library_id, file_id, cache_key, title, artist, album, album_artist, genre, composer, year, track_number, disc_number, created_at, updated_at`

// songRepository implements repository.SongRepository for SQLite.
type songRepository struct {
	db *DB
}

// NewSongRepository creates a new SQLite song repository.
func NewSongRepository(db *DB) repository.SongRepository {
	return &songRepository{db: db}
}

func scanSong(row rowScanner) (*domain.Song, error) {
	song := &domain.Song{}
	var id, libraryID, createdAt, updatedAt string
	var fileID, cacheKey sql.NullString

	err := row.Scan(
		&id,
		&libraryID,
		&fileID,
		&cacheKey,
		&song.Title,
		&song.Artist,
		&song.Album,
		&song.AlbumArtist,
		&song.Genre,
		&song.Composer,
		&song.Year,
		&song.TrackNumber,
		&song.DiscNumber,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	song.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid song id %q: %w", id, err)
	}
	song.LibraryID, err = uuid.Parse(libraryID)
	if err != nil {
		return nil, fmt.Errorf("invalid library id %q: %w", libraryID, err)
	}
	if fileID.Valid {
		fid, err := uuid.Parse(fileID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q: %w", fileID.String, err)
		}
		song.FileID = &fid
	}
	if cacheKey.Valid {
		song.CacheKey = &cacheKey.String
	}
	song.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	song.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return song, nil
}

// Create inserts a new song row.
func (r *songRepository) Create(ctx context.Context, song *domain.Song) error {
	query := `
		INSERT INTO songs (id, library_id, file_id, cache_key, title, artist, album, album_artist, genre, composer, year, track_number, disc_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var fileID interface{}
	if song.FileID != nil {
		fileID = song.FileID.String()
	}
	var cacheKey interface{}
	if song.CacheKey != nil {
		cacheKey = *song.CacheKey
	}

	_, err := r.db.ExecContext(ctx, query,
		song.ID.String(),
		song.LibraryID.String(),
		fileID,
		cacheKey,
		song.Title,
		song.Artist,
		song.Album,
		song.AlbumArtist,
		song.Genre,
		song.Composer,
		song.Year,
		song.TrackNumber,
		song.DiscNumber,
		song.CreatedAt.UTC().Format(time.RFC3339),
		song.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create song: %w", err)
	}

	return nil
}

// GetByID retrieves a song by ID.
func (r *songRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ?`

	song, err := scanSong(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrSongNotFound
		}
		return nil, fmt.Errorf("failed to get song by id: %w", err)
	}

	return song, nil
}

// ListByLibrary returns all songs in a library, in insertion order.
func (r *songRepository) ListByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE library_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, libraryID.String())
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
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs WHERE file_id = ?`, fileID.String()).Scan(&count)
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

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var fileID sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT file_id FROM songs WHERE id = ?`, songID.String()).Scan(&fileID)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrSongNotFound
			}
			return fmt.Errorf("failed to load song: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, songID.String()); err != nil {
			return fmt.Errorf("failed to delete song: %w", err)
		}

		if !fileID.Valid {
			return nil
		}

		query := `
			UPDATE files
			SET ref_count = ref_count - 1
			WHERE id = ?
			RETURNING ` + fileColumns

		file, err = scanFile(tx.QueryRowContext(ctx, query, fileID.String))
		if err != nil {
			if isNoRows(err) {
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
