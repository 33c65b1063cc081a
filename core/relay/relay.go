package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"WaveFM/core/upstream"
	"WaveFM/errs"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/storage"
)

// PlaybackController is the slice of the playback engine the relay
// drives. The relay reads state once at stream-open time and reports
// back only at end-of-stream or failure; it never holds the station's
// transition lock while bytes are moving.
type PlaybackController interface {
	StationByListenKey(ctx context.Context, listenKey string) (*model.Station, error)
	State(ctx context.Context, stationID int64) (*model.PlayState, error)
	StartIfIdle(ctx context.Context, stationID int64) (*model.QueueEntry, error)
	ReportStreamEnd(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error)
	ReportStreamFailure(ctx context.Context, stationID, entryID int64) (*model.QueueEntry, error)
	NoteStreamHealthy(stationID int64)
	CountListener(ctx context.Context, stationID int64)
}

// TrackLoader resolves track rows for the relay.
type TrackLoader interface {
	GetByID(ctx context.Context, id int64) (*model.Track, error)
}

// Relay opens one independent upstream fetch per listener connection
// and forwards the bytes. It is a relay, not a shared broadcast buffer.
type Relay struct {
	playback PlaybackController
	tracks   TrackLoader
	audio    upstream.AudioSource

	// seekThreshold is the minimum offset worth seeking for; joining a
	// track a couple of seconds in just plays from the top.
	seekThreshold float64
	cacheAudio    bool
}

// Config tunes the relay.
type Config struct {
	SeekThresholdSeconds int
	CacheAudio           bool
}

// New creates a Relay.
func New(playback PlaybackController, tracks TrackLoader, audio upstream.AudioSource, cfg Config) *Relay {
	if cfg.SeekThresholdSeconds <= 0 {
		cfg.SeekThresholdSeconds = 5
	}
	return &Relay{
		playback:      playback,
		tracks:        tracks,
		audio:         audio,
		seekThreshold: float64(cfg.SeekThresholdSeconds),
		cacheAudio:    cfg.CacheAudio,
	}
}

// Session is one listener's open stream.
type Session struct {
	relay      *Relay
	stationID  int64
	entryID    int64
	Stream     *upstream.AudioStream
	Station    *model.Station
	NowPlaying string

	finish sync.Once
}

// Open resolves the station's current track and opens its audio stream,
// seeking near the live position. An idle station gets one advance
// attempt first; with an empty queue the result is ErrNoContent.
// An upstream failure at open time already advances the station, then
// surfaces as ErrUpstreamUnavailable.
func (r *Relay) Open(ctx context.Context, listenKey string) (*Session, error) {
	station, err := r.playback.StationByListenKey(ctx, listenKey)
	if err != nil {
		return nil, err
	}
	if !station.IsPublic {
		return nil, errs.ErrNotFound
	}

	state, err := r.playback.State(ctx, station.ID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		if _, err := r.playback.StartIfIdle(ctx, station.ID); err != nil {
			return nil, err
		}
		state, err = r.playback.State(ctx, station.ID)
		if err != nil {
			return nil, err
		}
	}
	if state == nil {
		return nil, errs.ErrNoContent
	}

	r.playback.CountListener(ctx, station.ID)

	track, err := r.tracks.GetByID(ctx, state.TrackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, errs.ErrNotFound
	}

	seek := state.Elapsed(time.Now())
	if checkpoint := float64(station.CurrentPosition); checkpoint > seek {
		seek = checkpoint
	}
	if seek < r.seekThreshold {
		seek = 0
	}

	stream, err := r.openAudio(ctx, track, seek)
	if err != nil {
		logger.Warn("Upstream fetch failed at open, advancing",
			logger.Int64("stationId", station.ID),
			logger.String("sourceId", track.SourceID),
			logger.ErrorField(err))
		r.reportFailure(station.ID, state.EntryID)
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err)
	}

	return &Session{
		relay:      r,
		stationID:  station.ID,
		entryID:    state.EntryID,
		Stream:     stream,
		Station:    station,
		NowPlaying: track.DisplayArtist() + " - " + track.DisplayTitle(),
	}, nil
}

// openAudio fetches from the upstream, falling back to the object-store
// copy when the upstream refuses. Fresh zero-offset streams are teed
// into the object store for next time.
func (r *Relay) openAudio(ctx context.Context, track *model.Track, seek float64) (*upstream.AudioStream, error) {
	stream, err := r.audio.Fetch(ctx, track.SourceID, seek)
	if err == nil {
		if r.cacheAudio && seek == 0 && !storage.HasAudio(ctx, track.SourceID) {
			teeToCache(track.SourceID, stream)
		}
		return stream, nil
	}

	if r.cacheAudio {
		body, mimeType, size, cacheErr := storage.GetAudio(ctx, track.SourceID)
		if cacheErr == nil && body != nil {
			logger.Info("Serving cached audio after upstream failure",
				logger.String("sourceId", track.SourceID))
			return &upstream.AudioStream{
				Body:          body,
				MimeType:      mimeType,
				ContentLength: size,
			}, nil
		}
	}

	return nil, err
}

// Run forwards the stream to w until end, failure, or client
// disconnect, then reports the outcome exactly once. A disconnect never
// advances the station; the track keeps "playing" for everyone else.
func (s *Session) Run(ctx context.Context, w io.Writer) {
	defer s.Stream.Body.Close()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var sent int64
	healthy := false

	for {
		n, err := s.Stream.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.finishDisconnect(sent)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			sent += int64(n)
			if !healthy && sent >= 64*1024 {
				s.relay.playback.NoteStreamHealthy(s.stationID)
				healthy = true
			}
		}
		if err == io.EOF {
			s.finishEnd(sent)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				s.finishDisconnect(sent)
				return
			}
			s.finishFailure(sent, err)
			return
		}
	}
}

func (s *Session) finishEnd(sent int64) {
	s.finish.Do(func() {
		logger.Info("Stream ended, advancing",
			logger.Int64("stationId", s.stationID),
			logger.Int64("bytesSent", sent))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.relay.playback.ReportStreamEnd(ctx, s.stationID, s.entryID); err != nil {
			logger.Error("Failed to advance after stream end",
				logger.Int64("stationId", s.stationID), logger.ErrorField(err))
		}
	})
}

func (s *Session) finishFailure(sent int64, cause error) {
	s.finish.Do(func() {
		logger.Warn("Stream failed, advancing",
			logger.Int64("stationId", s.stationID),
			logger.Int64("bytesSent", sent),
			logger.ErrorField(cause))
		s.relay.reportFailure(s.stationID, s.entryID)
	})
}

func (s *Session) finishDisconnect(sent int64) {
	s.finish.Do(func() {
		logger.Debug("Listener disconnected",
			logger.Int64("stationId", s.stationID),
			logger.Int64("bytesSent", sent))
	})
}

func (r *Relay) reportFailure(stationID, entryID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.playback.ReportStreamFailure(ctx, stationID, entryID); err != nil {
		logger.Error("Failed to advance after stream failure",
			logger.Int64("stationId", stationID), logger.ErrorField(err))
	}
}

// cachingBody tees reads into an object-store upload. The upload
// completes only on a clean EOF; anything else aborts it.
type cachingBody struct {
	src io.ReadCloser
	tee io.Reader
	pw  *io.PipeWriter
	eof bool
}

var errUploadAborted = errors.New("audio upload aborted")

func teeToCache(sourceID string, stream *upstream.AudioStream) {
	pr, pw := io.Pipe()
	body := &cachingBody{
		src: stream.Body,
		tee: io.TeeReader(stream.Body, pw),
		pw:  pw,
	}
	stream.Body = body

	size := stream.ContentLength
	if size == 0 {
		size = -1
	}
	mimeType := stream.MimeType

	go func() {
		if err := storage.PutAudio(context.Background(), sourceID, pr, size, mimeType); err != nil {
			logger.Debug("Audio cache upload did not complete",
				logger.String("sourceId", sourceID), logger.ErrorField(err))
			pr.CloseWithError(err)
		}
	}()
}

func (b *cachingBody) Read(p []byte) (int, error) {
	n, err := b.tee.Read(p)
	if err == io.EOF {
		b.eof = true
		b.pw.Close()
	} else if err != nil {
		b.pw.CloseWithError(err)
	}
	return n, err
}

func (b *cachingBody) Close() error {
	if !b.eof {
		b.pw.CloseWithError(errUploadAborted)
	}
	return b.src.Close()
}
