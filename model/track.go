package model

import "time"

// SourceType identifies the external platform a track originates from.
type SourceType string

const (
	// SourceYouTube is currently the only supported upstream platform.
	SourceYouTube SourceType = "youtube"
)

// Track is a deduplicated catalog entry for a playable source item.
// At most one Track exists per (SourceType, SourceID); tracks are created
// lazily on first reference and never mutated except for metadata backfill.
type Track struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist,omitempty"`
	Album      string     `json:"album,omitempty"`
	Duration   float64    `json:"duration,omitempty"` // seconds, 0 = unknown
	ImageURL   string     `json:"imageUrl,omitempty"`
	SourceType SourceType `json:"sourceType"`
	SourceID   string     `json:"sourceId"`
	SourceURL  string     `json:"sourceUrl"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// DisplayTitle returns the title with a fallback for degraded metadata.
func (t *Track) DisplayTitle() string {
	if t.Title == "" {
		return "Unknown"
	}
	return t.Title
}

// DisplayArtist returns the artist with a fallback for degraded metadata.
func (t *Track) DisplayArtist() string {
	if t.Artist == "" {
		return "Unknown"
	}
	return t.Artist
}
