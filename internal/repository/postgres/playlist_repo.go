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

// playlistRepository implements repository.PlaylistRepository on PostgreSQL.
type playlistRepository struct {
	db *DB
}

// NewPlaylistRepository creates a new PostgreSQL playlist repository.
func NewPlaylistRepository(db *DB) repository.PlaylistRepository {
	return &playlistRepository{db: db}
}

// Create inserts a new playlist.
func (r *playlistRepository) Create(ctx context.Context, playlist *domain.Playlist) error {
	query := `
		INSERT INTO playlists (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		playlist.ID,
		playlist.OwnerID,
		playlist.Name,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}

	return nil
}

// GetByID retrieves a playlist by ID.
func (r *playlistRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playlist, error) {
	query := `SELECT id, owner_id, name, created_at, updated_at FROM playlists WHERE id = $1`

	playlist := &domain.Playlist{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&playlist.ID,
		&playlist.OwnerID,
		&playlist.Name,
		&playlist.CreatedAt,
		&playlist.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("failed to get playlist by id: %w", err)
	}

	return playlist, nil
}

// AddSong appends a song to a playlist.
func (r *playlistRepository) AddSong(ctx context.Context, ps *domain.PlaylistSong) error {
	query := `
		INSERT INTO playlist_songs (playlist_id, song_id, position, added_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query, ps.PlaylistID, ps.SongID, ps.Position, ps.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add song to playlist: %w", err)
	}

	return nil
}

// ListSongs returns a playlist's membership rows ordered by position.
func (r *playlistRepository) ListSongs(ctx context.Context, playlistID uuid.UUID) ([]*domain.PlaylistSong, error) {
	query := `
		SELECT playlist_id, song_id, position, added_at
		FROM playlist_songs
		WHERE playlist_id = $1
		ORDER BY position ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist songs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PlaylistSong
	for rows.Next() {
		ps := &domain.PlaylistSong{}
		if err := rows.Scan(&ps.PlaylistID, &ps.SongID, &ps.Position, &ps.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist song: %w", err)
		}
		entries = append(entries, ps)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist songs: %w", err)
	}

	return entries, nil
}

// DeleteRefsBySongs removes every membership row pointing at any of the given
// songs, across all playlists.
func (r *playlistRepository) DeleteRefsBySongs(ctx context.Context, songIDs []uuid.UUID) (int64, error) {
	if len(songIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.Pool.Exec(ctx, `DELETE FROM playlist_songs WHERE song_id = ANY($1)`, songIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete playlist references: %w", err)
	}

	return result.RowsAffected(), nil
}

// Delete removes the playlist. Membership rows go with it via ON DELETE CASCADE.
func (r *playlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrPlaylistNotFound
	}

	return nil
}

// Ensure playlistRepository implements repository.PlaylistRepository
var _ repository.PlaylistRepository = (*playlistRepository)(nil)
