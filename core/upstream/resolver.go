package upstream

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"

	"WaveFM/errs"
)

// TrackInfo is the best-effort metadata for a video. Fields other than
// SourceID may be empty when the upstream is degraded.
type TrackInfo struct {
	SourceID  string
	SourceURL string
	Title     string
	Artist    string
	Duration  float64
	ImageURL  string
}

// Resolver turns a video ID into track metadata.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) (*TrackInfo, error)
}

type youtubeResolver struct {
	client *youtube.Client
}

// NewResolver creates a Resolver backed by the video platform.
func NewResolver() Resolver {
	return &youtubeResolver{client: &youtube.Client{}}
}

func (r *youtubeResolver) Resolve(ctx context.Context, videoID string) (*TrackInfo, error) {
	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve video %s: %v", errs.ErrUpstreamUnavailable, videoID, err)
	}

	info := &TrackInfo{
		SourceID:  videoID,
		SourceURL: WatchURL(videoID),
		Title:     video.Title,
		Artist:    video.Author,
		Duration:  video.Duration.Seconds(),
		ImageURL:  ThumbnailURL(videoID),
	}
	if len(video.Thumbnails) > 0 {
		info.ImageURL = video.Thumbnails[len(video.Thumbnails)-1].URL
	}
	return info, nil
}

// MinimalTrackInfo is the degraded-service fallback: enough to queue
// and play the video even when metadata resolution failed.
func MinimalTrackInfo(videoID string) *TrackInfo {
	return &TrackInfo{
		SourceID:  videoID,
		SourceURL: WatchURL(videoID),
		Title:     fmt.Sprintf("YouTube Video (%s)", videoID),
		ImageURL:  ThumbnailURL(videoID),
	}
}
