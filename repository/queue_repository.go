package repository

import (
	"context"
	"database/sql"
	"fmt"

	"WaveFM/errs"
	"WaveFM/model"
)

// QueueRepository is the owner-facing queue store. It mutates entry
// existence and order only; status flips belong to the playback engine.
// Every mutation leaves the station's positions as a dense 0..n-1
// sequence, preserving relative order.
type QueueRepository interface {
	Append(ctx context.Context, stationID, trackID int64) (*model.QueueEntry, error)
	Remove(ctx context.Context, stationID, entryID int64) error
	Reorder(ctx context.Context, stationID, entryID int64, newPosition int) error
	ClearAll(ctx context.Context, stationID int64) error
	ListByStation(ctx context.Context, stationID int64) ([]*model.QueueEntry, error)
	GetByID(ctx context.Context, entryID int64) (*model.QueueEntry, error)
}

// mysqlQueueRepository implements QueueRepository for MySQL.
type mysqlQueueRepository struct {
	DB *sql.DB
}

// NewMySQLQueueRepository creates a new instance of mysqlQueueRepository.
func NewMySQLQueueRepository(db *sql.DB) QueueRepository {
	return &mysqlQueueRepository{DB: db}
}

// withStationTx runs fn inside a transaction holding the station row lock,
// serializing queue mutations against playback transitions.
func (r *mysqlQueueRepository) withStationTx(ctx context.Context, stationID int64, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin queue transaction: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM stations WHERE id = ? FOR UPDATE`, stationID).Scan(&id); err != nil {
		tx.Rollback()
		if err == sql.ErrNoRows {
			return errs.ErrNotFound
		}
		return fmt.Errorf("failed to lock station %d: %w", stationID, err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue transaction: %w", err)
	}
	return nil
}

// Append adds a track at the end of the station's queue with status Pending.
// A Pending or Playing entry for the same track already in this queue is a
// duplicate and is rejected.
func (r *mysqlQueueRepository) Append(ctx context.Context, stationID, trackID int64) (*model.QueueEntry, error) {
	var entry *model.QueueEntry
	err := r.withStationTx(ctx, stationID, func(tx *sql.Tx) error {
		var duplicates int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM queue_entries WHERE station_id = ? AND track_id = ? AND status IN ('pending', 'playing')`,
			stationID, trackID).Scan(&duplicates)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate track: %w", err)
		}
		if duplicates > 0 {
			return errs.ErrDuplicateTrack
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM queue_entries WHERE station_id = ?`, stationID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count queue entries: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries (station_id, track_id, position, status) VALUES (?, ?, ?, 'pending')`,
			stationID, trackID, count)
		if err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get queue entry ID: %w", err)
		}

		entry = &model.QueueEntry{
			ID:        id,
			StationID: stationID,
			TrackID:   trackID,
			Position:  count,
			Status:    model.StatusPending,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Remove deletes a Pending entry and re-packs the remaining positions.
func (r *mysqlQueueRepository) Remove(ctx context.Context, stationID, entryID int64) error {
	return r.withStationTx(ctx, stationID, func(tx *sql.Tx) error {
		status, err := entryStatus(ctx, tx, stationID, entryID)
		if err != nil {
			return err
		}
		if status != model.StatusPending {
			return errs.ErrInvalidState
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, entryID); err != nil {
			return fmt.Errorf("failed to delete queue entry %d: %w", entryID, err)
		}

		return repackPositions(ctx, tx, stationID)
	})
}

// Reorder moves a Pending entry to newPosition (clamped to the queue
// bounds) and re-packs every position.
func (r *mysqlQueueRepository) Reorder(ctx context.Context, stationID, entryID int64, newPosition int) error {
	return r.withStationTx(ctx, stationID, func(tx *sql.Tx) error {
		status, err := entryStatus(ctx, tx, stationID, entryID)
		if err != nil {
			return err
		}
		if status != model.StatusPending {
			return errs.ErrInvalidState
		}

		ids, err := entryIDsInOrder(ctx, tx, stationID)
		if err != nil {
			return err
		}

		reordered, ok := moveWithinQueue(ids, entryID, newPosition)
		if !ok {
			return errs.ErrNotFound
		}

		return writePositions(ctx, tx, reordered)
	})
}

// moveWithinQueue returns ids with entryID moved to newPosition, clamped
// to [0, len(ids)-1]. The relative order of every other entry is
// preserved and the input slice is left untouched. The second return is
// false when entryID is not in ids.
func moveWithinQueue(ids []int64, entryID int64, newPosition int) ([]int64, bool) {
	currentIndex := -1
	for i, id := range ids {
		if id == entryID {
			currentIndex = i
			break
		}
	}
	if currentIndex == -1 {
		return nil, false
	}

	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition > len(ids)-1 {
		newPosition = len(ids) - 1
	}

	// Remove and reinsert; writePositions turns slice order into dense
	// 0..n-1 positions.
	rest := make([]int64, 0, len(ids)-1)
	rest = append(rest, ids[:currentIndex]...)
	rest = append(rest, ids[currentIndex+1:]...)

	out := make([]int64, 0, len(ids))
	out = append(out, rest[:newPosition]...)
	out = append(out, entryID)
	out = append(out, rest[newPosition:]...)
	return out, true
}

// ClearAll deletes every entry for the station.
func (r *mysqlQueueRepository) ClearAll(ctx context.Context, stationID int64) error {
	return r.withStationTx(ctx, stationID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE station_id = ?`, stationID); err != nil {
			return fmt.Errorf("failed to clear queue for station %d: %w", stationID, err)
		}
		return nil
	})
}

// ListByStation returns the station's queue in position order with the
// catalog track joined in.
func (r *mysqlQueueRepository) ListByStation(ctx context.Context, stationID int64) ([]*model.QueueEntry, error) {
	query := `SELECT q.id, q.station_id, q.track_id, q.position, q.status, q.added_at,
	                 t.id, t.title, t.artist, t.album, t.duration, t.image_url, t.source_type, t.source_id, t.source_url, t.created_at, t.updated_at
	          FROM queue_entries q
	          JOIN tracks t ON t.id = q.track_id
	          WHERE q.station_id = ?
	          ORDER BY q.position ASC`

	rows, err := r.DB.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue for station %d: %w", stationID, err)
	}
	defer rows.Close()

	entries := make([]*model.QueueEntry, 0)
	for rows.Next() {
		entry := &model.QueueEntry{Track: &model.Track{}}
		var artist, album, imageURL sql.NullString
		err := rows.Scan(&entry.ID, &entry.StationID, &entry.TrackID, &entry.Position, &entry.Status, &entry.AddedAt,
			&entry.Track.ID, &entry.Track.Title, &artist, &album, &entry.Track.Duration,
			&imageURL, &entry.Track.SourceType, &entry.Track.SourceID, &entry.Track.SourceURL,
			&entry.Track.CreatedAt, &entry.Track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entry.Track.Artist = artist.String
		entry.Track.Album = album.String
		entry.Track.ImageURL = imageURL.String
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListByStation: %w", err)
	}

	return entries, nil
}

// GetByID retrieves a single queue entry. Returns (nil, nil) when not found.
func (r *mysqlQueueRepository) GetByID(ctx context.Context, entryID int64) (*model.QueueEntry, error) {
	query := `SELECT id, station_id, track_id, position, status, added_at FROM queue_entries WHERE id = ?`
	entry := &model.QueueEntry{}
	err := r.DB.QueryRowContext(ctx, query, entryID).Scan(
		&entry.ID, &entry.StationID, &entry.TrackID, &entry.Position, &entry.Status, &entry.AddedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan queue entry %d: %w", entryID, err)
	}
	return entry, nil
}

func entryStatus(ctx context.Context, tx *sql.Tx, stationID, entryID int64) (model.QueueStatus, error) {
	var status model.QueueStatus
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM queue_entries WHERE id = ? AND station_id = ?`, entryID, stationID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("failed to read status of entry %d: %w", entryID, err)
	}
	return status, nil
}

func entryIDsInOrder(ctx context.Context, tx *sql.Tx, stationID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM queue_entries WHERE station_id = ? ORDER BY position ASC`, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry IDs for station %d: %w", stationID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// repackPositions rewrites positions as a dense 0..n-1 sequence in the
// current position order.
func repackPositions(ctx context.Context, tx *sql.Tx, stationID int64) error {
	ids, err := entryIDsInOrder(ctx, tx, stationID)
	if err != nil {
		return err
	}
	return writePositions(ctx, tx, ids)
}

func writePositions(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE queue_entries SET position = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("failed to update position of entry %d: %w", id, err)
		}
	}
	return nil
}
