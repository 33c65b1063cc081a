package playback

import (
	"context"
	"time"

	"WaveFM/errs"
	"WaveFM/model"
)

// QueueLister is the read-side queue access the projector needs.
type QueueLister interface {
	ListByStation(ctx context.Context, stationID int64) ([]*model.QueueEntry, error)
}

// ListenView is the anonymous listener's picture of a station. It is
// derived purely from queue state, so it answers "what's playing" even
// when nobody holds an open audio stream.
type ListenView struct {
	StationName    string              `json:"stationName"`
	Description    string              `json:"description,omitempty"`
	ImageURL       string              `json:"imageUrl,omitempty"`
	IsLive         bool                `json:"isLive"`
	NowPlaying     *model.QueueEntry   `json:"nowPlaying"`
	ElapsedSeconds float64             `json:"elapsedSeconds"`
	UpNext         []*model.QueueEntry `json:"upNext"`
}

// Projector builds listener-facing views from the engine's state and
// the queue.
type Projector struct {
	engine      *Engine
	queue       QueueLister
	upNextCount int
}

// NewProjector creates a Projector. upNextCount bounds the preview list.
func NewProjector(engine *Engine, queue QueueLister, upNextCount int) *Projector {
	if upNextCount <= 0 {
		upNextCount = 5
	}
	return &Projector{engine: engine, queue: queue, upNextCount: upNextCount}
}

// ListenViewByKey resolves the station by listen key and assembles its
// view. countListener bumps the play counter, for first connects only.
func (p *Projector) ListenViewByKey(ctx context.Context, listenKey string, countListener bool) (*ListenView, error) {
	station, err := p.engine.StationByListenKey(ctx, listenKey)
	if err != nil {
		return nil, err
	}
	if !station.IsPublic {
		return nil, errs.ErrNotFound
	}

	if countListener {
		p.engine.CountListener(ctx, station.ID)
	}

	view := &ListenView{
		StationName: station.Name,
		Description: station.Description,
		ImageURL:    station.ImageURL,
		IsLive:      station.IsLive,
		UpNext:      []*model.QueueEntry{},
	}

	entries, err := p.queue.ListByStation(ctx, station.ID)
	if err != nil {
		return nil, err
	}

	var playing *model.QueueEntry
	var firstPending *model.QueueEntry
	for _, entry := range entries {
		switch entry.Status {
		case model.StatusPlaying:
			if playing == nil {
				playing = entry
			}
		case model.StatusPending:
			if firstPending == nil {
				firstPending = entry
			}
		}
	}

	if playing != nil {
		view.NowPlaying = playing
		state, err := p.engine.State(ctx, station.ID)
		if err == nil && state != nil && state.EntryID == playing.ID {
			view.ElapsedSeconds = state.Elapsed(time.Now())
		}
	} else if firstPending != nil {
		// Not live, but the queue shows what would play first.
		view.NowPlaying = firstPending
	}

	for _, entry := range entries {
		if entry.Status != model.StatusPending {
			continue
		}
		if view.NowPlaying != nil && entry.ID == view.NowPlaying.ID {
			continue
		}
		view.UpNext = append(view.UpNext, entry)
		if len(view.UpNext) == p.upNextCount {
			break
		}
	}

	return view, nil
}
