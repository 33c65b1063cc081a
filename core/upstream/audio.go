package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"

	"WaveFM/errs"
	"WaveFM/logger"
)

// AudioStream is one open upstream audio fetch. Body must be closed by
// the consumer.
type AudioStream struct {
	Body          io.ReadCloser
	MimeType      string
	Bitrate       int
	SampleRate    string
	ContentLength int64
}

// AudioSource fetches the best audio-only variant of a video,
// optionally resumed at an offset.
type AudioSource interface {
	Fetch(ctx context.Context, videoID string, seekSeconds float64) (*AudioStream, error)
}

type youtubeAudioSource struct {
	client *youtube.Client
	http   *http.Client
}

// NewAudioSource creates an AudioSource backed by the video platform.
func NewAudioSource() AudioSource {
	return &youtubeAudioSource{
		client: &youtube.Client{},
		http:   http.DefaultClient,
	}
}

// bestAudioFormat picks the highest-bitrate audio-only format.
func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

func (s *youtubeAudioSource) Fetch(ctx context.Context, videoID string, seekSeconds float64) (*AudioStream, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load video %s: %v", errs.ErrUpstreamUnavailable, videoID, err)
	}

	format := bestAudioFormat(video.Formats)
	if format == nil {
		return nil, fmt.Errorf("%w: no audio-only format for video %s", errs.ErrUpstreamUnavailable, videoID)
	}

	stream := &AudioStream{
		MimeType:      strings.SplitN(format.MimeType, ";", 2)[0],
		Bitrate:       format.Bitrate / 1000,
		SampleRate:    format.AudioSampleRate,
		ContentLength: format.ContentLength,
	}

	// Seeking works on the byte level: the audio-only variants carry a
	// roughly constant bitrate, so offset ~ length * elapsed/duration.
	// Without a known duration or length the track starts from zero.
	if seekSeconds > 0 && format.ContentLength > 0 && video.Duration > 0 {
		offset := int64(float64(format.ContentLength) * seekSeconds / video.Duration.Seconds())
		if offset > 0 && offset < format.ContentLength {
			body, err := s.fetchRange(ctx, format, offset)
			if err == nil {
				stream.Body = body
				stream.ContentLength = format.ContentLength - offset
				return stream, nil
			}
			logger.Warn("Ranged audio fetch failed, starting from the top",
				logger.String("videoId", videoID), logger.ErrorField(err))
		}
	}

	body, _, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio stream for %s: %v", errs.ErrUpstreamUnavailable, videoID, err)
	}
	stream.Body = body
	return stream, nil
}

// fetchRange opens the format URL directly with a Range header.
func (s *youtubeAudioSource) fetchRange(ctx context.Context, format *youtube.Format, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, format.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for ranged fetch", resp.StatusCode)
	}
	return resp.Body, nil
}
