package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WaveFM/model"
)

// TrackRepository defines the interface for catalog operations.
type TrackRepository interface {
	// CreateOrGet inserts the track if no entry exists for its
	// (sourceType, sourceId) pair, otherwise backfills metadata and
	// returns the existing row. Atomic under concurrent first-adds.
	CreateOrGet(ctx context.Context, track *model.Track) (*model.Track, error)
	GetByID(ctx context.Context, id int64) (*model.Track, error)
	GetBySource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Track, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

const trackColumns = `id, title, artist, album, duration, image_url, source_type, source_id, source_url, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var artist, album, imageURL sql.NullString
	err := row.Scan(&track.ID, &track.Title, &artist, &album, &track.Duration,
		&imageURL, &track.SourceType, &track.SourceID, &track.SourceURL,
		&track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	track.Artist = artist.String
	track.Album = album.String
	track.ImageURL = imageURL.String
	return track, nil
}

// CreateOrGet performs an atomic insert-or-fetch keyed by (source_type, source_id).
func (r *mysqlTrackRepository) CreateOrGet(ctx context.Context, track *model.Track) (*model.Track, error) {
	// ON DUPLICATE KEY UPDATE doubles as metadata backfill: a repeat add
	// with fresher metadata refreshes the existing row.
	query := `INSERT INTO tracks (title, artist, album, duration, image_url, source_type, source_id, source_url, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	               title = VALUES(title),
	               artist = VALUES(artist),
	               album = VALUES(album),
	               duration = VALUES(duration),
	               image_url = VALUES(image_url),
	               updated_at = VALUES(updated_at)`

	now := time.Now()
	_, err := r.DB.ExecContext(ctx, query, track.Title, track.Artist, track.Album,
		track.Duration, track.ImageURL, track.SourceType, track.SourceID, track.SourceURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert track: %w", err)
	}

	saved, err := r.GetBySource(ctx, track.SourceType, track.SourceID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("track vanished after upsert for source %s/%s", track.SourceType, track.SourceID)
	}
	return saved, nil
}

// GetByID retrieves a track by its ID. Returns (nil, nil) when not found.
func (r *mysqlTrackRepository) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetBySource retrieves a track by its platform identity. Returns (nil, nil) when not found.
func (r *mysqlTrackRepository) GetBySource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE source_type = ? AND source_id = ?`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, sourceType, sourceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by source %s/%s: %w", sourceType, sourceID, err)
	}
	return track, nil
}
