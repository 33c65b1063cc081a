package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"WaveFM/core/upstream"
	"WaveFM/errs"
	"WaveFM/model"
)

type fakePlayback struct {
	mu              sync.Mutex
	station         *model.Station
	state           *model.PlayState
	stateAfterStart *model.PlayState

	starts    int
	ends      int
	failures  int
	healthy   int
	listeners int
}

func (f *fakePlayback) StationByListenKey(ctx context.Context, listenKey string) (*model.Station, error) {
	if f.station == nil || f.station.ListenKey != listenKey {
		return nil, errs.ErrNotFound
	}
	return f.station, nil
}

func (f *fakePlayback) State(ctx context.Context, stationID int64) (*model.PlayState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakePlayback) StartIfIdle(ctx context.Context, stationID int64) (*model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.state = f.stateAfterStart
	if f.state == nil {
		return nil, nil
	}
	return &model.QueueEntry{ID: f.state.EntryID}, nil
}

func (f *fakePlayback) ReportStreamEnd(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return nil, nil
}

func (f *fakePlayback) ReportStreamFailure(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	return nil, nil
}

func (f *fakePlayback) NoteStreamHealthy(stationID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy++
}

func (f *fakePlayback) CountListener(ctx context.Context, stationID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners++
}

func (f *fakePlayback) counts() (starts, ends, failures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.ends, f.failures
}

type fakeTracks struct {
	track *model.Track
}

func (f *fakeTracks) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	if f.track == nil || f.track.ID != id {
		return nil, nil
	}
	return f.track, nil
}

type fakeAudio struct {
	mu       sync.Mutex
	body     io.ReadCloser
	err      error
	lastSeek float64
	fetches  int
}

func (f *fakeAudio) Fetch(ctx context.Context, videoID string, seekSeconds float64) (*upstream.AudioStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.lastSeek = seekSeconds
	if f.err != nil {
		return nil, f.err
	}
	return &upstream.AudioStream{
		Body:     f.body,
		MimeType: "audio/webm",
		Bitrate:  128,
	}, nil
}

func liveState(entryID int64, elapsed time.Duration) *model.PlayState {
	started := time.Now().Add(-elapsed)
	return &model.PlayState{StationID: 1, TrackID: 100, EntryID: entryID, StartedAt: started, Duration: 180}
}

func testStation() *model.Station {
	return &model.Station{ID: 1, Name: "Night Drive", ListenKey: "k1", IsPublic: true, IsLive: true}
}

func testRelay(pb *fakePlayback, audio *fakeAudio) *Relay {
	tracks := &fakeTracks{track: &model.Track{ID: 100, Title: "Song", Artist: "Band", SourceID: "dQw4w9WgXcQ"}}
	return New(pb, tracks, audio, Config{SeekThresholdSeconds: 5})
}

func TestOpenIdleStationStartsPlayback(t *testing.T) {
	pb := &fakePlayback{
		station:         testStation(),
		stateAfterStart: liveState(10, 0),
	}
	audio := &fakeAudio{body: io.NopCloser(strings.NewReader("audio"))}
	relay := testRelay(pb, audio)

	session, err := relay.Open(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if pb.starts != 1 {
		t.Errorf("starts = %d, want 1", pb.starts)
	}
	if pb.listeners != 1 {
		t.Errorf("listeners = %d, want 1", pb.listeners)
	}
	if session.NowPlaying != "Band - Song" {
		t.Errorf("nowPlaying = %q", session.NowPlaying)
	}
}

func TestOpenEmptyQueueNoContent(t *testing.T) {
	pb := &fakePlayback{station: testStation()}
	relay := testRelay(pb, &fakeAudio{})

	_, err := relay.Open(context.Background(), "k1")
	if !errors.Is(err, errs.ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
	if pb.starts != 1 {
		t.Errorf("starts = %d, want exactly one advance attempt", pb.starts)
	}
}

func TestOpenSeekThreshold(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		wantSeek bool
	}{
		{"tiny offset plays from the top", 2 * time.Second, false},
		{"mid-track join seeks", 60 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := &fakePlayback{station: testStation(), state: liveState(10, tt.elapsed)}
			audio := &fakeAudio{body: io.NopCloser(strings.NewReader("audio"))}
			relay := testRelay(pb, audio)

			if _, err := relay.Open(context.Background(), "k1"); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if tt.wantSeek && audio.lastSeek < 55 {
				t.Errorf("seek = %.1f, want about %v", audio.lastSeek, tt.elapsed)
			}
			if !tt.wantSeek && audio.lastSeek != 0 {
				t.Errorf("seek = %.1f, want 0", audio.lastSeek)
			}
		})
	}
}

func TestOpenUpstreamFailureAdvancesOnce(t *testing.T) {
	pb := &fakePlayback{station: testStation(), state: liveState(10, 0)}
	audio := &fakeAudio{err: errors.New("format unavailable")}
	relay := testRelay(pb, audio)

	_, err := relay.Open(context.Background(), "k1")
	if !errors.Is(err, errs.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	_, _, failures := pb.counts()
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestRunEndOfStreamAdvancesOnce(t *testing.T) {
	pb := &fakePlayback{station: testStation(), state: liveState(10, 0)}
	audio := &fakeAudio{body: io.NopCloser(strings.NewReader("some audio bytes"))}
	relay := testRelay(pb, audio)

	session, err := relay.Open(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var out bytes.Buffer
	session.Run(context.Background(), &out)

	if out.String() != "some audio bytes" {
		t.Errorf("forwarded %q", out.String())
	}
	_, ends, failures := pb.counts()
	if ends != 1 || failures != 0 {
		t.Errorf("ends = %d failures = %d, want 1 and 0", ends, failures)
	}

	// A second finish signal must not advance again.
	session.finishEnd(0)
	_, ends, _ = pb.counts()
	if ends != 1 {
		t.Errorf("ends after repeat = %d, want still 1", ends)
	}
}

type brokenReader struct {
	data []byte
	read bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func (r *brokenReader) Close() error { return nil }

func TestRunUpstreamErrorAdvancesOnce(t *testing.T) {
	pb := &fakePlayback{station: testStation(), state: liveState(10, 0)}
	audio := &fakeAudio{body: &brokenReader{data: []byte("partial")}}
	relay := testRelay(pb, audio)

	session, err := relay.Open(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var out bytes.Buffer
	session.Run(context.Background(), &out)

	_, ends, failures := pb.counts()
	if failures != 1 || ends != 0 {
		t.Errorf("failures = %d ends = %d, want 1 and 0", failures, ends)
	}
}

type rejectingWriter struct{}

func (rejectingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("client gone")
}

func TestRunClientDisconnectDoesNotAdvance(t *testing.T) {
	pb := &fakePlayback{station: testStation(), state: liveState(10, 0)}
	audio := &fakeAudio{body: io.NopCloser(strings.NewReader("some audio bytes"))}
	relay := testRelay(pb, audio)

	session, err := relay.Open(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	session.Run(context.Background(), rejectingWriter{})

	_, ends, failures := pb.counts()
	if ends != 0 || failures != 0 {
		t.Errorf("ends = %d failures = %d, want no advance on disconnect", ends, failures)
	}
}

func TestOpenPrivateStationHidden(t *testing.T) {
	station := testStation()
	station.IsPublic = false
	pb := &fakePlayback{station: station, state: liveState(10, 0)}
	relay := testRelay(pb, &fakeAudio{body: io.NopCloser(strings.NewReader("x"))})

	_, err := relay.Open(context.Background(), "k1")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
