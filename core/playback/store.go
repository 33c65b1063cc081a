package playback

import (
	"context"
	"time"

	"WaveFM/model"
)

// Store is the durable state the engine transitions over. The database
// is authoritative for station liveness, queue statuses, and history;
// the engine's cache layer only mirrors it.
//
// WithStationLock runs fn inside a transaction that holds the station's
// row lock, so a transition sees a stable queue and queue mutations see
// stable statuses. The Store passed to fn is bound to that transaction.
type Store interface {
	GetStation(ctx context.Context, stationID int64) (*model.Station, error)
	GetStationByListenKey(ctx context.Context, listenKey string) (*model.Station, error)

	// GetPlayingEntry returns the station's single Playing entry with its
	// track attached, or (nil, nil) when the station has none.
	GetPlayingEntry(ctx context.Context, stationID int64) (*model.QueueEntry, error)

	// GetFirstPending returns the lowest-position Pending entry with its
	// track attached, or (nil, nil) when the queue holds no Pending entries.
	GetFirstPending(ctx context.Context, stationID int64) (*model.QueueEntry, error)

	// GetEntry returns one entry without its track, or (nil, nil).
	GetEntry(ctx context.Context, entryID int64) (*model.QueueEntry, error)

	// ListEntries returns the station's entries in position order, tracks
	// not attached.
	ListEntries(ctx context.Context, stationID int64) ([]*model.QueueEntry, error)

	// ResetAllToPending flips every entry of the station back to Pending.
	ResetAllToPending(ctx context.Context, stationID int64) error

	SetEntryStatus(ctx context.Context, entryID int64, status model.QueueStatus) error
	SetStationLive(ctx context.Context, stationID int64, live bool, startedAt *time.Time) error
	SetLiveStartedAt(ctx context.Context, stationID int64, startedAt time.Time) error
	SetCheckpoint(ctx context.Context, stationID int64, seconds int) error
	IncrementPlayCount(ctx context.Context, stationID int64) error
	AppendHistory(ctx context.Context, stationID, trackID int64) error

	WithStationLock(ctx context.Context, stationID int64, fn func(ctx context.Context, tx Store) error) error
}
