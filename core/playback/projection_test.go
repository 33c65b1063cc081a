package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"WaveFM/errs"
	"WaveFM/model"
)

type memQueue struct {
	store *memStore
}

func (q *memQueue) ListByStation(ctx context.Context, stationID int64) ([]*model.QueueEntry, error) {
	return q.store.ListEntries(ctx, stationID)
}

func TestListenViewEmptyIdleStation(t *testing.T) {
	store := newMemStore(&model.Station{ID: 1, Name: "Night Drive", ListenKey: "k1", IsPublic: true})
	engine := newTestEngine(store, 0)
	projector := NewProjector(engine, &memQueue{store}, 5)

	view, err := projector.ListenViewByKey(context.Background(), "k1", false)
	if err != nil {
		t.Fatalf("ListenViewByKey failed: %v", err)
	}
	if view.NowPlaying != nil {
		t.Errorf("nowPlaying = entry %d, want nil", view.NowPlaying.ID)
	}
	if len(view.UpNext) != 0 {
		t.Errorf("upNext length = %d, want 0", len(view.UpNext))
	}
}

func TestListenViewIdleWithQueue(t *testing.T) {
	store := newMemStore(&model.Station{ID: 1, Name: "Night Drive", ListenKey: "k1", IsPublic: true},
		testEntry(10, 1, 100, 0, model.StatusPending),
		testEntry(11, 1, 101, 1, model.StatusPending),
	)
	engine := newTestEngine(store, 0)
	projector := NewProjector(engine, &memQueue{store}, 5)

	view, err := projector.ListenViewByKey(context.Background(), "k1", false)
	if err != nil {
		t.Fatalf("ListenViewByKey failed: %v", err)
	}
	if view.NowPlaying == nil || view.NowPlaying.ID != 10 {
		t.Fatalf("nowPlaying = %+v, want entry 10", view.NowPlaying)
	}
	if len(view.UpNext) != 1 || view.UpNext[0].ID != 11 {
		t.Errorf("upNext = %+v, want exactly entry 11", view.UpNext)
	}
}

func TestListenViewLiveStation(t *testing.T) {
	startedAt := time.Now().Add(-10 * time.Second)
	entries := []*model.QueueEntry{
		testEntry(10, 1, 100, 0, model.StatusPlayed),
		testEntry(11, 1, 101, 1, model.StatusPlaying),
	}
	for i := 0; i < 7; i++ {
		entries = append(entries, testEntry(int64(12+i), 1, int64(102+i), 2+i, model.StatusPending))
	}
	store := newMemStore(&model.Station{
		ID: 1, Name: "Night Drive", ListenKey: "k1",
		IsPublic: true, IsLive: true, LiveStartedAt: &startedAt,
	}, entries...)
	engine := newTestEngine(store, 0)
	projector := NewProjector(engine, &memQueue{store}, 5)

	view, err := projector.ListenViewByKey(context.Background(), "k1", true)
	if err != nil {
		t.Fatalf("ListenViewByKey failed: %v", err)
	}
	if view.NowPlaying == nil || view.NowPlaying.ID != 11 {
		t.Fatalf("nowPlaying = %+v, want entry 11", view.NowPlaying)
	}
	if view.ElapsedSeconds < 9 || view.ElapsedSeconds > 15 {
		t.Errorf("elapsedSeconds = %.1f, want about 10", view.ElapsedSeconds)
	}
	if len(view.UpNext) != 5 {
		t.Errorf("upNext length = %d, want capped at 5", len(view.UpNext))
	}
	if store.d.station.PlayCount != 1 {
		t.Errorf("playCount = %d, want 1 after counted connect", store.d.station.PlayCount)
	}
}

func TestListenViewPrivateStationHidden(t *testing.T) {
	store := newMemStore(&model.Station{ID: 1, ListenKey: "k1", IsPublic: false})
	engine := newTestEngine(store, 0)
	projector := NewProjector(engine, &memQueue{store}, 5)

	_, err := projector.ListenViewByKey(context.Background(), "k1", false)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for private station, got %v", err)
	}
}
