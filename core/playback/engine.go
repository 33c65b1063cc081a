package playback

import (
	"context"
	"sync"
	"time"

	"WaveFM/cache"
	"WaveFM/errs"
	"WaveFM/logger"
	"WaveFM/model"
)

// Engine is the station playback state machine. It is the only writer
// of queue entry statuses and station liveness; the queue store and the
// projections only read what it leaves behind.
//
// Every transition runs under two layers of exclusion: a per-station
// in-process mutex, and the store's row lock on the station. The mutex
// keeps one process from racing itself; the row lock keeps transitions
// serialized against queue mutations and other processes.
type Engine struct {
	store   Store
	states  *cache.StateCache
	opts    Options
	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	strikes map[int64]int
}

// Options tunes the engine's recovery behavior.
type Options struct {
	// AdvanceFailureCap bounds consecutive failed advances before the
	// engine stops the station instead of looping through a broken queue.
	AdvanceFailureCap int
}

// NewEngine creates an Engine over the given store. states may be nil.
func NewEngine(store Store, states *cache.StateCache, opts Options) *Engine {
	if opts.AdvanceFailureCap <= 0 {
		opts.AdvanceFailureCap = 10
	}
	return &Engine{
		store:   store,
		states:  states,
		opts:    opts,
		locks:   make(map[int64]*sync.Mutex),
		strikes: make(map[int64]int),
	}
}

func (e *Engine) stationLock(stationID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[stationID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[stationID] = lock
	}
	return lock
}

// transition runs fn under the station's mutex and row lock, then drops
// the cached state so readers rebuild from the database.
func (e *Engine) transition(ctx context.Context, stationID int64, fn func(ctx context.Context, tx Store) error) error {
	lock := e.stationLock(stationID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.WithStationLock(ctx, stationID, fn); err != nil {
		return err
	}

	if err := e.states.Invalidate(ctx, stationID); err != nil {
		logger.Warn("Failed to invalidate play state cache",
			logger.Int64("stationId", stationID), logger.ErrorField(err))
	}
	return nil
}

// GoLive starts the broadcast: every entry resets to Pending, the
// earliest one starts Playing, and a history record is appended.
// Rejected with ErrEmptyQueue when the queue holds nothing. Called on a
// station that is already live it restarts the broadcast from the top
// of the queue rather than erroring.
func (e *Engine) GoLive(ctx context.Context, stationID int64) error {
	return e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		station, err := tx.GetStation(ctx, stationID)
		if err != nil {
			return err
		}
		if station == nil {
			return errs.ErrNotFound
		}

		if err := tx.ResetAllToPending(ctx, stationID); err != nil {
			return err
		}

		first, err := tx.GetFirstPending(ctx, stationID)
		if err != nil {
			return err
		}
		if first == nil {
			return errs.ErrEmptyQueue
		}

		if err := tx.SetEntryStatus(ctx, first.ID, model.StatusPlaying); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.SetStationLive(ctx, stationID, true, &now); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, stationID, first.TrackID); err != nil {
			return err
		}

		e.resetStrikes(stationID)
		logger.Info("Station went live",
			logger.Int64("stationId", stationID),
			logger.Int64("entryId", first.ID),
			logger.String("title", first.Track.DisplayTitle()))
		return nil
	})
}

// GoOffline stops the broadcast. The Playing entry keeps its status so
// GoLive can restart from a clean slate later.
func (e *Engine) GoOffline(ctx context.Context, stationID int64) error {
	return e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		if err := tx.SetStationLive(ctx, stationID, false, nil); err != nil {
			return err
		}
		logger.Info("Station went offline", logger.Int64("stationId", stationID))
		return nil
	})
}

// AdvanceToNext marks the Playing entry Played and starts the lowest
// Pending one. With no Pending entry left the station simply goes Idle;
// that is the normal end of the queue, not an error.
func (e *Engine) AdvanceToNext(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	var next *model.QueueEntry
	err := e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		var err error
		next, err = e.advanceLocked(ctx, tx, stationID, model.StatusPlayed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// advanceFrom advances only if the station's Playing entry is still
// fromEntryID (0 means "expect none Playing"). When another caller got
// there first the call is a no-op and the competitor's result stands,
// so simultaneous end-of-track signals and explicit skips cannot
// double-advance. Returns whether this call performed the advance.
func (e *Engine) advanceFrom(ctx context.Context, stationID, fromEntryID int64, finishedStatus model.QueueStatus) (*model.QueueEntry, bool, error) {
	var next *model.QueueEntry
	advanced := false
	err := e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		playing, err := tx.GetPlayingEntry(ctx, stationID)
		if err != nil {
			return err
		}
		current := int64(0)
		if playing != nil {
			current = playing.ID
		}
		if current != fromEntryID {
			next = playing
			return nil
		}

		next, err = e.advanceLocked(ctx, tx, stationID, finishedStatus)
		if err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return next, advanced, nil
}

// PlayNext is the owner's explicit "next track" action. It snapshots
// which entry it is advancing from, so two simultaneous requests
// produce exactly one advance.
func (e *Engine) PlayNext(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	playing, err := e.store.GetPlayingEntry(ctx, stationID)
	if err != nil {
		return nil, err
	}
	from := int64(0)
	if playing != nil {
		from = playing.ID
	}
	next, _, err := e.advanceFrom(ctx, stationID, from, model.StatusPlayed)
	return next, err
}

// StartIfIdle starts the first Pending entry when nothing is Playing.
// Used by the relay when a listener connects to an idle station.
func (e *Engine) StartIfIdle(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	next, _, err := e.advanceFrom(ctx, stationID, 0, model.StatusPlayed)
	return next, err
}

// advanceLocked does the advance under an already-held station lock.
// finishedStatus is what the current Playing entry becomes.
func (e *Engine) advanceLocked(ctx context.Context, tx Store, stationID int64, finishedStatus model.QueueStatus) (*model.QueueEntry, error) {
	playing, err := tx.GetPlayingEntry(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if playing != nil {
		if err := tx.SetEntryStatus(ctx, playing.ID, finishedStatus); err != nil {
			return nil, err
		}
	}

	next, err := tx.GetFirstPending(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// Queue exhausted. The station is Idle now; liveness is untouched.
		if err := tx.SetCheckpoint(ctx, stationID, 0); err != nil {
			return nil, err
		}
		logger.Info("Queue exhausted, station idle", logger.Int64("stationId", stationID))
		return nil, nil
	}

	if err := tx.SetEntryStatus(ctx, next.ID, model.StatusPlaying); err != nil {
		return nil, err
	}
	if err := tx.SetLiveStartedAt(ctx, stationID, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.AppendHistory(ctx, stationID, next.TrackID); err != nil {
		return nil, err
	}

	logger.Info("Advanced to next track",
		logger.Int64("stationId", stationID),
		logger.Int64("entryId", next.ID),
		logger.String("title", next.Track.DisplayTitle()))
	return next, nil
}

// SkipExplicit marks the entry Skipped whatever its status was. Skipping
// the Playing entry advances to the next track in the same transition.
func (e *Engine) SkipExplicit(ctx context.Context, stationID, entryID int64) error {
	return e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry == nil || entry.StationID != stationID {
			return errs.ErrNotFound
		}

		wasPlaying := entry.Status == model.StatusPlaying
		if err := tx.SetEntryStatus(ctx, entryID, model.StatusSkipped); err != nil {
			return err
		}
		if !wasPlaying {
			return nil
		}

		_, err = e.advanceLocked(ctx, tx, stationID, model.StatusSkipped)
		return err
	})
}

// SyncPlaying reconciles the queue with the entry an external player
// reports as actually started: everything before it becomes Played, it
// becomes Playing, everything after returns to Pending. Matching is by
// entry identity, never by track, so duplicate tracks stay unambiguous.
// No history is appended; the play was initiated elsewhere.
func (e *Engine) SyncPlaying(ctx context.Context, stationID, entryID int64) error {
	return e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		target, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if target == nil || target.StationID != stationID {
			return errs.ErrNotFound
		}
		if target.Status != model.StatusPending && target.Status != model.StatusPlaying {
			return errs.ErrInvalidState
		}

		entries, err := tx.ListEntries(ctx, stationID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			var want model.QueueStatus
			switch {
			case entry.Position < target.Position:
				want = model.StatusPlayed
			case entry.ID == entryID:
				want = model.StatusPlaying
			default:
				want = model.StatusPending
			}
			if entry.Status == want {
				continue
			}
			// Skipped entries before the sync point stay skipped.
			if want == model.StatusPlayed && entry.Status == model.StatusSkipped {
				continue
			}
			if err := tx.SetEntryStatus(ctx, entry.ID, want); err != nil {
				return err
			}
		}

		return tx.SetLiveStartedAt(ctx, stationID, time.Now())
	})
}

// SyncPosition checkpoints the playback offset within the current
// track. It never drives advancement.
func (e *Engine) SyncPosition(ctx context.Context, stationID int64, seconds int) error {
	if seconds < 0 {
		return errs.ErrValidation
	}
	return e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
		playing, err := tx.GetPlayingEntry(ctx, stationID)
		if err != nil {
			return err
		}
		if playing == nil {
			return errs.ErrInvalidState
		}
		return tx.SetCheckpoint(ctx, stationID, seconds)
	})
}

// StationByListenKey resolves a station by its public key.
func (e *Engine) StationByListenKey(ctx context.Context, listenKey string) (*model.Station, error) {
	station, err := e.store.GetStationByListenKey(ctx, listenKey)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, errs.ErrNotFound
	}
	return station, nil
}

// State returns the current play state for a station, or (nil, nil)
// when nothing is Playing. Reads go through the cache; on a miss the
// state is rebuilt from the database and written back.
func (e *Engine) State(ctx context.Context, stationID int64) (*model.PlayState, error) {
	cached, err := e.states.Get(ctx, stationID)
	if err != nil {
		logger.Warn("Play state cache read failed",
			logger.Int64("stationId", stationID), logger.ErrorField(err))
	}
	if cached != nil {
		return cached, nil
	}

	playing, err := e.store.GetPlayingEntry(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if playing == nil {
		return nil, nil
	}

	station, err := e.store.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, errs.ErrNotFound
	}

	startedAt := time.Now()
	if station.LiveStartedAt != nil {
		startedAt = *station.LiveStartedAt
	}

	state := &model.PlayState{
		StationID: stationID,
		TrackID:   playing.TrackID,
		EntryID:   playing.ID,
		StartedAt: startedAt,
		Duration:  playing.Track.Duration,
	}

	if err := e.states.Set(ctx, state); err != nil {
		logger.Warn("Play state cache write failed",
			logger.Int64("stationId", stationID), logger.ErrorField(err))
	}
	return state, nil
}

// CountListener bumps the station's play counter on listener connect.
func (e *Engine) CountListener(ctx context.Context, stationID int64) {
	if err := e.store.IncrementPlayCount(ctx, stationID); err != nil {
		logger.Warn("Failed to increment play count",
			logger.Int64("stationId", stationID), logger.ErrorField(err))
	}
}

// ReportStreamEnd is the relay's normal end-of-track signal for the
// entry it was streaming. It resets the failure counter and advances,
// unless a competing transition already moved the station on.
func (e *Engine) ReportStreamEnd(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error) {
	e.resetStrikes(stationID)
	next, _, err := e.advanceFrom(ctx, stationID, entryID, model.StatusPlayed)
	return next, err
}

// ReportStreamFailure is the relay's upstream-failure signal. The
// broken track is skipped and the broadcast moves on, but consecutive
// failures are counted: at the cap the engine stops the station Idle
// instead of burning through a queue that will never play.
func (e *Engine) ReportStreamFailure(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error) {
	strikes := e.addStrike(stationID)
	if strikes >= e.opts.AdvanceFailureCap {
		logger.Warn("Consecutive upstream failures reached cap, stopping station",
			logger.Int64("stationId", stationID), logger.Int("failures", strikes))
		err := e.transition(ctx, stationID, func(ctx context.Context, tx Store) error {
			playing, err := tx.GetPlayingEntry(ctx, stationID)
			if err != nil {
				return err
			}
			if playing != nil && playing.ID == entryID {
				if err := tx.SetEntryStatus(ctx, playing.ID, model.StatusSkipped); err != nil {
					return err
				}
			}
			return tx.SetCheckpoint(ctx, stationID, 0)
		})
		if err != nil {
			return nil, err
		}
		e.resetStrikes(stationID)
		return nil, nil
	}

	next, _, err := e.advanceFrom(ctx, stationID, entryID, model.StatusSkipped)
	return next, err
}

// NoteStreamHealthy clears the failure counter once a track has
// actually delivered audio.
func (e *Engine) NoteStreamHealthy(stationID int64) {
	e.resetStrikes(stationID)
}

func (e *Engine) addStrike(stationID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strikes[stationID]++
	return e.strikes[stationID]
}

func (e *Engine) resetStrikes(stationID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strikes, stationID)
}
