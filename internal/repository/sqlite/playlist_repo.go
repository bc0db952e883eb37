package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/repository"
)

// playlistRepository implements repository.PlaylistRepository for SQLite.
type playlistRepository struct {
	db *DB
}

// NewPlaylistRepository creates a new SQLite playlist repository.
func NewPlaylistRepository(db *DB) repository.PlaylistRepository {
	return &playlistRepository{db: db}
}

// Create inserts a new playlist.
func (r *playlistRepository) Create(ctx context.Context, playlist *domain.Playlist) error {
	query := `
		INSERT INTO playlists (id, owner_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		playlist.ID.String(),
		playlist.OwnerID,
		playlist.Name,
		playlist.CreatedAt.UTC().Format(time.RFC3339),
		playlist.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}

	return nil
}

// GetByID retrieves a playlist by ID.
func (r *playlistRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playlist, error) {
	query := `SELECT id, owner_id, name, created_at, updated_at FROM playlists WHERE id = ?`

	playlist := &domain.Playlist{}
	var plID, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&plID,
		&playlist.OwnerID,
		&playlist.Name,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("failed to get playlist by id: %w", err)
	}

	playlist.ID, err = uuid.Parse(plID)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist id %q: %w", plID, err)
	}
	playlist.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	playlist.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return playlist, nil
}

// AddSong appends a song to a playlist.
func (r *playlistRepository) AddSong(ctx context.Context, ps *domain.PlaylistSong) error {
	query := `
		INSERT INTO playlist_songs (playlist_id, song_id, position, added_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		ps.PlaylistID.String(),
		ps.SongID.String(),
		ps.Position,
		ps.AddedAt.UTC().Format(time.RFC3339),
	)
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
		WHERE playlist_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, playlistID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist songs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PlaylistSong
	for rows.Next() {
		ps := &domain.PlaylistSong{}
		var plID, songID, addedAt string
		if err := rows.Scan(&plID, &songID, &ps.Position, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist song: %w", err)
		}
		ps.PlaylistID, err = uuid.Parse(plID)
		if err != nil {
			return nil, fmt.Errorf("invalid playlist id %q: %w", plID, err)
		}
		ps.SongID, err = uuid.Parse(songID)
		if err != nil {
			return nil, fmt.Errorf("invalid song id %q: %w", songID, err)
		}
		ps.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
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

	placeholders := make([]string, len(songIDs))
	args := make([]interface{}, len(songIDs))
	for i, id := range songIDs {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	query := `DELETE FROM playlist_songs WHERE song_id IN (` + strings.Join(placeholders, ", ") + `)`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete playlist references: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// Delete removes the playlist. Membership rows go with it via ON DELETE CASCADE.
func (r *playlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrPlaylistNotFound
	}

	return nil
}

// Ensure playlistRepository implements repository.PlaylistRepository
var _ repository.PlaylistRepository = (*playlistRepository)(nil)
