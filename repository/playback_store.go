package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WaveFM/core/playback"
	"WaveFM/errs"
	"WaveFM/model"
)

// queryer is the common surface of *sql.DB and *sql.Tx, letting one
// store implementation serve both the unlocked and the locked path.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// mysqlPlaybackStore implements playback.Store on MySQL. Inside
// WithStationLock it hands the callback a copy of itself bound to the
// open transaction.
type mysqlPlaybackStore struct {
	DB *sql.DB
	q  queryer
}

// NewMySQLPlaybackStore creates a new instance of mysqlPlaybackStore.
func NewMySQLPlaybackStore(db *sql.DB) playback.Store {
	return &mysqlPlaybackStore{DB: db, q: db}
}

func (s *mysqlPlaybackStore) GetStation(ctx context.Context, stationID int64) (*model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE id = ?`
	return scanStation(s.q.QueryRowContext(ctx, query, stationID))
}

func (s *mysqlPlaybackStore) GetStationByListenKey(ctx context.Context, listenKey string) (*model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE listen_key = ?`
	return scanStation(s.q.QueryRowContext(ctx, query, listenKey))
}

const entryWithTrackColumns = `q.id, q.station_id, q.track_id, q.position, q.status, q.added_at,
	t.id, t.title, t.artist, t.album, t.duration, t.image_url, t.source_type, t.source_id, t.source_url, t.created_at, t.updated_at`

func scanEntryWithTrack(row interface{ Scan(...interface{}) error }) (*model.QueueEntry, error) {
	entry := &model.QueueEntry{Track: &model.Track{}}
	var artist, album, imageURL sql.NullString
	err := row.Scan(&entry.ID, &entry.StationID, &entry.TrackID, &entry.Position, &entry.Status, &entry.AddedAt,
		&entry.Track.ID, &entry.Track.Title, &artist, &album, &entry.Track.Duration,
		&imageURL, &entry.Track.SourceType, &entry.Track.SourceID, &entry.Track.SourceURL,
		&entry.Track.CreatedAt, &entry.Track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	entry.Track.Artist = artist.String
	entry.Track.Album = album.String
	entry.Track.ImageURL = imageURL.String
	return entry, nil
}

func (s *mysqlPlaybackStore) GetPlayingEntry(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	query := `SELECT ` + entryWithTrackColumns + `
	          FROM queue_entries q JOIN tracks t ON t.id = q.track_id
	          WHERE q.station_id = ? AND q.status = 'playing'
	          ORDER BY q.position ASC`
	rows, err := s.q.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playing entry for station %d: %w", stationID, err)
	}
	defer rows.Close()

	var entries []*model.QueueEntry
	for rows.Next() {
		entry, err := scanEntryWithTrack(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetPlayingEntry: %w", err)
	}

	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return entries[0], nil
	default:
		// Serialization should make this impossible. Surface it loudly
		// instead of silently patching the queue.
		return nil, fmt.Errorf("%w: station %d has %d playing entries",
			errs.ErrInvariantViolation, stationID, len(entries))
	}
}

func (s *mysqlPlaybackStore) GetFirstPending(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	query := `SELECT ` + entryWithTrackColumns + `
	          FROM queue_entries q JOIN tracks t ON t.id = q.track_id
	          WHERE q.station_id = ? AND q.status = 'pending'
	          ORDER BY q.position ASC LIMIT 1`
	return scanEntryWithTrack(s.q.QueryRowContext(ctx, query, stationID))
}

func (s *mysqlPlaybackStore) GetEntry(ctx context.Context, entryID int64) (*model.QueueEntry, error) {
	query := `SELECT id, station_id, track_id, position, status, added_at FROM queue_entries WHERE id = ?`
	entry := &model.QueueEntry{}
	err := s.q.QueryRowContext(ctx, query, entryID).Scan(
		&entry.ID, &entry.StationID, &entry.TrackID, &entry.Position, &entry.Status, &entry.AddedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan queue entry %d: %w", entryID, err)
	}
	return entry, nil
}

func (s *mysqlPlaybackStore) ListEntries(ctx context.Context, stationID int64) ([]*model.QueueEntry, error) {
	query := `SELECT id, station_id, track_id, position, status, added_at
	          FROM queue_entries WHERE station_id = ? ORDER BY position ASC`
	rows, err := s.q.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for station %d: %w", stationID, err)
	}
	defer rows.Close()

	var entries []*model.QueueEntry
	for rows.Next() {
		entry := &model.QueueEntry{}
		if err := rows.Scan(&entry.ID, &entry.StationID, &entry.TrackID, &entry.Position, &entry.Status, &entry.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *mysqlPlaybackStore) ResetAllToPending(ctx context.Context, stationID int64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE queue_entries SET status = 'pending' WHERE station_id = ?`, stationID)
	if err != nil {
		return fmt.Errorf("failed to reset queue for station %d: %w", stationID, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) SetEntryStatus(ctx context.Context, entryID int64, status model.QueueStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE queue_entries SET status = ? WHERE id = ?`, status, entryID)
	if err != nil {
		return fmt.Errorf("failed to set entry %d status to %s: %w", entryID, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *mysqlPlaybackStore) SetStationLive(ctx context.Context, stationID int64, live bool, startedAt *time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE stations SET is_live = ?, live_started_at = ?, current_position = 0 WHERE id = ?`,
		live, startedAt, stationID)
	if err != nil {
		return fmt.Errorf("failed to set station %d live=%t: %w", stationID, live, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) SetLiveStartedAt(ctx context.Context, stationID int64, startedAt time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE stations SET live_started_at = ?, current_position = 0 WHERE id = ?`, startedAt, stationID)
	if err != nil {
		return fmt.Errorf("failed to reset live start for station %d: %w", stationID, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) SetCheckpoint(ctx context.Context, stationID int64, seconds int) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE stations SET current_position = ? WHERE id = ?`, seconds, stationID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint station %d: %w", stationID, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) IncrementPlayCount(ctx context.Context, stationID int64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE stations SET play_count = play_count + 1 WHERE id = ?`, stationID)
	if err != nil {
		return fmt.Errorf("failed to increment play count for station %d: %w", stationID, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) AppendHistory(ctx context.Context, stationID, trackID int64) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO play_history (station_id, track_id) VALUES (?, ?)`, stationID, trackID)
	if err != nil {
		return fmt.Errorf("failed to append play history for station %d: %w", stationID, err)
	}
	return nil
}

func (s *mysqlPlaybackStore) WithStationLock(ctx context.Context, stationID int64, fn func(ctx context.Context, tx playback.Store) error) error {
	if s.DB == nil {
		// Already inside a locked transaction; nesting would deadlock.
		return fn(ctx, s)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin playback transaction: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM stations WHERE id = ? FOR UPDATE`, stationID).Scan(&id); err != nil {
		tx.Rollback()
		if err == sql.ErrNoRows {
			return errs.ErrNotFound
		}
		return fmt.Errorf("failed to lock station %d: %w", stationID, err)
	}

	bound := &mysqlPlaybackStore{q: tx}
	if err := fn(ctx, bound); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playback transaction: %w", err)
	}
	return nil
}
