package model

import "time"

// QueueStatus is the lifecycle state of a queue entry. Status transitions
// are driven only by the playback engine; owner mutations may touch
// position and existence of Pending entries but never flip status.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusPlaying QueueStatus = "playing"
	StatusPlayed  QueueStatus = "played"
	StatusSkipped QueueStatus = "skipped"
)

// QueueEntry is one scheduled placement of a Track within a Station's
// play order. Positions within a station are dense and zero-based; at
// most one entry per station is Playing at any time.
type QueueEntry struct {
	ID        int64       `json:"id"`
	StationID int64       `json:"stationId"`
	TrackID   int64       `json:"trackId"`
	Position  int         `json:"position"`
	Status    QueueStatus `json:"status"`
	AddedAt   time.Time   `json:"addedAt"`

	// Track is populated on queries that join the catalog; nil otherwise.
	Track *Track `json:"track,omitempty"`
}
