package model

import "time"

// Station is a named, ownable broadcast channel with its own queue and
// live/offline flag. ListenKey is the only identifier ever exposed to
// anonymous listeners; the numeric ID stays owner-side.
type Station struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"-"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	ImageURL        string     `json:"imageUrl,omitempty"`
	IsPublic        bool       `json:"isPublic"`
	IsLive          bool       `json:"isLive"`
	LiveStartedAt   *time.Time `json:"liveStartedAt,omitempty"`
	CurrentPosition int        `json:"currentPosition"` // playback offset in seconds, checkpointed
	ListenKey       string     `json:"listenKey"`
	PlayCount       int64      `json:"playCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
