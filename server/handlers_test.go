package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"WaveFM/config"
	"WaveFM/core/auth"
	"WaveFM/core/playback"
	"WaveFM/core/relay"
	"WaveFM/core/upstream"
	"WaveFM/errs"
	"WaveFM/model"
)

type fakeStationRepo struct {
	stations map[int64]*model.Station
}

func (f *fakeStationRepo) Create(ctx context.Context, station *model.Station) (int64, error) {
	id := int64(len(f.stations) + 1)
	station.ID = id
	f.stations[id] = station
	return id, nil
}

func (f *fakeStationRepo) GetByID(ctx context.Context, id int64) (*model.Station, error) {
	return f.stations[id], nil
}

func (f *fakeStationRepo) GetByListenKey(ctx context.Context, listenKey string) (*model.Station, error) {
	for _, s := range f.stations {
		if s.ListenKey == listenKey {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStationRepo) ListPublic(ctx context.Context, limit, offset int) ([]*model.Station, error) {
	var out []*model.Station
	for _, s := range f.stations {
		if s.IsPublic {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeTrackRepo struct {
	tracks map[int64]*model.Track
}

func (f *fakeTrackRepo) CreateOrGet(ctx context.Context, track *model.Track) (*model.Track, error) {
	for _, t := range f.tracks {
		if t.SourceType == track.SourceType && t.SourceID == track.SourceID {
			return t, nil
		}
	}
	track.ID = int64(len(f.tracks) + 1)
	f.tracks[track.ID] = track
	return track, nil
}

func (f *fakeTrackRepo) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	return f.tracks[id], nil
}

func (f *fakeTrackRepo) GetBySource(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.Track, error) {
	for _, t := range f.tracks {
		if t.SourceType == sourceType && t.SourceID == sourceID {
			return t, nil
		}
	}
	return nil, nil
}

type fakeQueueRepo struct {
	appendErr error
	entries   []*model.QueueEntry
	reorders  int
	removed   []int64
	cleared   bool
}

func (f *fakeQueueRepo) Append(ctx context.Context, stationID, trackID int64) (*model.QueueEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	entry := &model.QueueEntry{ID: int64(len(f.entries) + 1), StationID: stationID, TrackID: trackID, Status: model.StatusPending}
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeQueueRepo) Remove(ctx context.Context, stationID, entryID int64) error {
	f.removed = append(f.removed, entryID)
	return nil
}

func (f *fakeQueueRepo) Reorder(ctx context.Context, stationID, entryID int64, newPosition int) error {
	f.reorders++
	return nil
}

func (f *fakeQueueRepo) ClearAll(ctx context.Context, stationID int64) error {
	f.cleared = true
	return nil
}

func (f *fakeQueueRepo) ListByStation(ctx context.Context, stationID int64) ([]*model.QueueEntry, error) {
	return f.entries, nil
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, entryID int64) (*model.QueueEntry, error) {
	for _, e := range f.entries {
		if e.ID == entryID {
			return e, nil
		}
	}
	return nil, nil
}

type fakeHistoryRepo struct{}

func (fakeHistoryRepo) ListRecentByStation(ctx context.Context, stationID int64, limit int) ([]*model.PlayHistoryEntry, error) {
	return nil, nil
}

type fakeEngine struct {
	calls   []string
	liveErr error
}

func (f *fakeEngine) GoLive(ctx context.Context, stationID int64) error {
	f.calls = append(f.calls, "go-live")
	return f.liveErr
}

func (f *fakeEngine) GoOffline(ctx context.Context, stationID int64) error {
	f.calls = append(f.calls, "go-offline")
	return nil
}

func (f *fakeEngine) PlayNext(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	f.calls = append(f.calls, "play-next")
	return &model.QueueEntry{ID: 2, Status: model.StatusPlaying}, nil
}

func (f *fakeEngine) SkipExplicit(ctx context.Context, stationID, entryID int64) error {
	f.calls = append(f.calls, "skip")
	return nil
}

func (f *fakeEngine) SyncPlaying(ctx context.Context, stationID, entryID int64) error {
	f.calls = append(f.calls, "sync-playing")
	return nil
}

func (f *fakeEngine) SyncPosition(ctx context.Context, stationID int64, seconds int) error {
	f.calls = append(f.calls, "sync-position")
	return nil
}

type fakeProjector struct {
	lastCounted bool
	view        *playback.ListenView
	err         error
}

func (f *fakeProjector) ListenViewByKey(ctx context.Context, listenKey string, countListener bool) (*playback.ListenView, error) {
	f.lastCounted = countListener
	if f.err != nil {
		return nil, f.err
	}
	return f.view, nil
}

type fakeRelay struct {
	err error
}

func (f *fakeRelay) Open(ctx context.Context, listenKey string) (*relay.Session, error) {
	return nil, f.err
}

type fakeResolver struct {
	info *upstream.TrackInfo
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, videoID string) (*upstream.TrackInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type testEnv struct {
	handler  *APIHandler
	stations *fakeStationRepo
	tracks   *fakeTrackRepo
	queue    *fakeQueueRepo
	engine   *fakeEngine
	proj     *fakeProjector
	relay    *fakeRelay
	resolver *fakeResolver
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth.Init("test-secret")
	token, err := auth.GenerateToken(7, "owner")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	env := &testEnv{
		stations: &fakeStationRepo{stations: map[int64]*model.Station{
			1: {ID: 1, OwnerID: 7, Name: "Night Drive", ListenKey: "k1", IsPublic: true},
			2: {ID: 2, OwnerID: 8, Name: "Someone Else", ListenKey: "k2", IsPublic: true},
		}},
		tracks:   &fakeTrackRepo{tracks: map[int64]*model.Track{}},
		queue:    &fakeQueueRepo{},
		engine:   &fakeEngine{},
		proj:     &fakeProjector{view: &playback.ListenView{StationName: "Night Drive"}},
		relay:    &fakeRelay{},
		resolver: &fakeResolver{info: &upstream.TrackInfo{SourceID: "dQw4w9WgXcQ", Title: "Song"}},
		token:    token,
	}
	env.handler = NewAPIHandler(env.stations, env.tracks, env.queue, fakeHistoryRepo{},
		env.engine, env.proj, env.relay, env.resolver, &config.Config{})
	return env
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stations", nil)
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.CreateStationHandler)(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateStationValidation(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stations", bytes.NewBufferString(`{"name":"  "}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.CreateStationHandler)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateStation(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stations", bytes.NewBufferString(`{"name":"Late Nights"}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.CreateStationHandler)(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var station model.Station
	if err := json.Unmarshal(rec.Body.Bytes(), &station); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if station.ListenKey == "" {
		t.Error("listen key was not generated")
	}
	if created := env.stations.stations[station.ID]; created == nil || created.OwnerID != 7 {
		t.Error("station was not stored with the token's owner")
	}
}

func TestQueueActionDispatch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCall   string
	}{
		{"go-live", `{"action":"go-live"}`, http.StatusOK, "go-live"},
		{"go-offline", `{"action":"go-offline"}`, http.StatusOK, "go-offline"},
		{"play-next", `{"action":"play-next"}`, http.StatusOK, "play-next"},
		{"skip", `{"action":"skip","entryId":3}`, http.StatusOK, "skip"},
		{"skip missing entry id", `{"action":"skip"}`, http.StatusBadRequest, ""},
		{"sync-playing", `{"action":"sync-playing","entryId":3}`, http.StatusOK, "sync-playing"},
		{"sync-position", `{"action":"sync-position","seconds":42}`, http.StatusOK, "sync-position"},
		{"unknown action", `{"action":"shuffle"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodPatch, "/api/stations/1/queue", bytes.NewBufferString(tt.body))
			req.Header.Set("Authorization", "Bearer "+env.token)
			req = mux.SetURLVars(req, map[string]string{"id": "1"})
			rec := httptest.NewRecorder()

			env.handler.AuthMiddleware(env.handler.QueueActionHandler)(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCall != "" {
				if len(env.engine.calls) != 1 || env.engine.calls[0] != tt.wantCall {
					t.Errorf("engine calls = %v, want [%s]", env.engine.calls, tt.wantCall)
				}
			} else if len(env.engine.calls) != 0 {
				t.Errorf("engine calls = %v, want none", env.engine.calls)
			}
		})
	}
}

func TestQueueActionReorderUsesQueueStore(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPatch, "/api/stations/1/queue",
		bytes.NewBufferString(`{"action":"reorder","entryId":3,"position":0}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.QueueActionHandler)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.queue.reorders != 1 {
		t.Errorf("reorders = %d, want 1", env.queue.reorders)
	}
}

func TestQueueActionForeignStationHidden(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPatch, "/api/stations/2/queue", bytes.NewBufferString(`{"action":"go-live"}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "2"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.QueueActionHandler)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for another owner's station", rec.Code)
	}
}

func TestAddToQueueByURL(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stations/1/queue",
		bytes.NewBufferString(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.AddToQueueHandler)(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(env.queue.entries) != 1 {
		t.Fatalf("queue length = %d, want 1", len(env.queue.entries))
	}
}

func TestAddToQueueResolverDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.resolver.err = errs.ErrUpstreamUnavailable

	req := httptest.NewRequest(http.MethodPost, "/api/stations/1/queue",
		bytes.NewBufferString(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.AddToQueueHandler)(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite degraded resolver: %s", rec.Code, rec.Body.String())
	}

	track := env.tracks.tracks[1]
	if track == nil || track.Title != "YouTube Video (dQw4w9WgXcQ)" {
		t.Errorf("track = %+v, want minimal metadata fallback", track)
	}
}

func TestAddToQueueDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.queue.appendErr = errs.ErrDuplicateTrack
	env.tracks.tracks[5] = &model.Track{ID: 5, SourceType: model.SourceYouTube, SourceID: "abc"}

	req := httptest.NewRequest(http.MethodPost, "/api/stations/1/queue", bytes.NewBufferString(`{"trackId":5}`))
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.AddToQueueHandler)(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRemoveFromQueue(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/stations/1/queue?itemId=4", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.RemoveFromQueueHandler)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(env.queue.removed) != 1 || env.queue.removed[0] != 4 {
		t.Errorf("removed = %v, want [4]", env.queue.removed)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/stations/1/queue?clearAll=true", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec = httptest.NewRecorder()

	env.handler.AuthMiddleware(env.handler.RemoveFromQueueHandler)(rec, req)
	if !env.queue.cleared {
		t.Error("clearAll did not reach the queue store")
	}
}

func TestListenHandlerPollFlag(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/listen/k1", nil)
	req = mux.SetURLVars(req, map[string]string{"listenKey": "k1"})
	rec := httptest.NewRecorder()
	env.handler.ListenHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.proj.lastCounted {
		t.Error("plain listen request should count the listener")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/listen/k1?poll=true", nil)
	req = mux.SetURLVars(req, map[string]string{"listenKey": "k1"})
	rec = httptest.NewRecorder()
	env.handler.ListenHandler(rec, req)
	if env.proj.lastCounted {
		t.Error("poll=true must not count the listener")
	}
}

func TestStreamHandlerStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"idle empty queue", errs.ErrNoContent, http.StatusNoContent},
		{"unknown station", errs.ErrNotFound, http.StatusNotFound},
		{"upstream down at open", errs.ErrUpstreamUnavailable, http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.relay.err = tt.err

			req := httptest.NewRequest(http.MethodGet, "/stream/k1", nil)
			req = mux.SetURLVars(req, map[string]string{"listenKey": "k1"})
			rec := httptest.NewRecorder()

			env.handler.StreamHandler(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
