package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"WaveFM/model"
)

// HistoryRepository reads the append-only play history. Writes happen
// inside playback transitions and go through the playback store.
type HistoryRepository interface {
	ListRecentByStation(ctx context.Context, stationID int64, limit int) ([]*model.PlayHistoryEntry, error)
}

type gormHistoryRepository struct {
	DB *gorm.DB
}

// NewGormHistoryRepository creates a new instance of gormHistoryRepository.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{DB: db}
}

// ListRecentByStation returns the most recent history entries for a
// station, newest first, with the catalog track attached.
func (r *gormHistoryRepository) ListRecentByStation(ctx context.Context, stationID int64, limit int) ([]*model.PlayHistoryEntry, error) {
	var entries []*model.PlayHistoryEntry
	err := r.DB.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list play history for station %d: %w", stationID, err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	trackIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		trackIDs = append(trackIDs, e.TrackID)
	}

	var tracks []*model.Track
	if err := r.DB.WithContext(ctx).Where("id IN ?", trackIDs).Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to load tracks for play history: %w", err)
	}

	byID := make(map[int64]*model.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}
	for _, e := range entries {
		e.Track = byID[e.TrackID]
	}

	return entries, nil
}
