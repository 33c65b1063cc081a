package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WaveFM/model"
)

// StationRepository defines the interface for station data operations.
// Live/offline flags and playback position are mutated only through the
// playback store; this repository covers creation and reads.
type StationRepository interface {
	Create(ctx context.Context, station *model.Station) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Station, error)
	GetByListenKey(ctx context.Context, listenKey string) (*model.Station, error)
	ListPublic(ctx context.Context, limit, offset int) ([]*model.Station, error)
}

// mysqlStationRepository implements StationRepository for MySQL.
type mysqlStationRepository struct {
	DB *sql.DB
}

// NewMySQLStationRepository creates a new instance of mysqlStationRepository.
func NewMySQLStationRepository(db *sql.DB) StationRepository {
	return &mysqlStationRepository{DB: db}
}

const stationColumns = `id, owner_id, name, description, image_url, is_public, is_live, live_started_at, current_position, listen_key, play_count, created_at, updated_at`

func scanStation(row interface{ Scan(...interface{}) error }) (*model.Station, error) {
	station := &model.Station{}
	var description, imageURL sql.NullString
	var liveStartedAt sql.NullTime
	err := row.Scan(&station.ID, &station.OwnerID, &station.Name, &description,
		&imageURL, &station.IsPublic, &station.IsLive, &liveStartedAt,
		&station.CurrentPosition, &station.ListenKey, &station.PlayCount,
		&station.CreatedAt, &station.UpdatedAt)
	if err != nil {
		return nil, err
	}
	station.Description = description.String
	station.ImageURL = imageURL.String
	if liveStartedAt.Valid {
		t := liveStartedAt.Time
		station.LiveStartedAt = &t
	}
	return station, nil
}

// Create adds a new station. The caller supplies the listen key.
func (r *mysqlStationRepository) Create(ctx context.Context, station *model.Station) (int64, error) {
	query := `INSERT INTO stations (owner_id, name, description, image_url, is_public, listen_key, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	res, err := r.DB.ExecContext(ctx, query, station.OwnerID, station.Name,
		station.Description, station.ImageURL, station.IsPublic, station.ListenKey, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute station insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for station: %w", err)
	}
	return id, nil
}

// GetByID retrieves a station by its internal ID. Returns (nil, nil) when not found.
func (r *mysqlStationRepository) GetByID(ctx context.Context, id int64) (*model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE id = ?`
	station, err := scanStation(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan station by ID %d: %w", id, err)
	}
	return station, nil
}

// GetByListenKey retrieves a station by its public listen key. Returns (nil, nil) when not found.
func (r *mysqlStationRepository) GetByListenKey(ctx context.Context, listenKey string) (*model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE listen_key = ?`
	station, err := scanStation(r.DB.QueryRowContext(ctx, query, listenKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan station by listen key: %w", err)
	}
	return station, nil
}

// ListPublic retrieves public stations ordered by creation time, newest first.
func (r *mysqlStationRepository) ListPublic(ctx context.Context, limit, offset int) ([]*model.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE is_public = TRUE ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query public stations: %w", err)
	}
	defer rows.Close()

	stations := make([]*model.Station, 0)
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station in ListPublic: %w", err)
		}
		stations = append(stations, station)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListPublic: %w", err)
	}

	return stations, nil
}
