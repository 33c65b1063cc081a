package model

import "time"

// PlayHistoryEntry is an append-only record written each time a station
// advances to a new track. Entries are never updated or deleted here;
// retention is an operational concern.
type PlayHistoryEntry struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	StationID int64     `json:"stationId" gorm:"index;not null"`
	TrackID   int64     `json:"trackId" gorm:"not null"`
	PlayedAt  time.Time `json:"playedAt" gorm:"autoCreateTime;index"`

	Track *Track `json:"track,omitempty" gorm:"-"`
}

// TableName keeps the GORM table name aligned with the raw-SQL schema.
func (PlayHistoryEntry) TableName() string {
	return "play_history"
}
