package model

import "time"

// PlayState is the derived now-playing snapshot for a live station. It
// is rebuilt from the database whenever needed; the cache copy is only
// a shortcut.
type PlayState struct {
	StationID int64     `json:"stationId"`
	TrackID   int64     `json:"trackId"`
	EntryID   int64     `json:"entryId"`
	StartedAt time.Time `json:"startedAt"`
	Duration  float64   `json:"duration"`
}

// Elapsed reports the seconds since the current track started.
func (s *PlayState) Elapsed(now time.Time) float64 {
	return now.Sub(s.StartedAt).Seconds()
}
