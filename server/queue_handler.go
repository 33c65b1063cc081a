package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"WaveFM/core/upstream"
	"WaveFM/errs"
	"WaveFM/logger"
	"WaveFM/model"
)

// AddToQueueRequest appends a track by catalog ID or by resolvable URL.
type AddToQueueRequest struct {
	TrackID int64  `json:"trackId"`
	URL     string `json:"url"`
}

// AddToQueueHandler appends a track to the owner's queue. URLs are
// resolved to catalog tracks first; when the resolver is degraded the
// track is created with minimal metadata rather than rejected.
func (h *APIHandler) AddToQueueHandler(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}
	if _, err := h.ownedStation(r, stationID); err != nil {
		writeError(w, err)
		return
	}

	var req AddToQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrValidation)
		return
	}

	var track *model.Track
	switch {
	case req.TrackID != 0:
		track, err = h.trackRepo.GetByID(r.Context(), req.TrackID)
		if err != nil {
			writeError(w, err)
			return
		}
		if track == nil {
			writeError(w, errs.ErrNotFound)
			return
		}
	case req.URL != "":
		track, err = h.trackFromURL(r, req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, errs.ErrValidation)
		return
	}

	entry, err := h.queueRepo.Append(r.Context(), stationID, track.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	entry.Track = track

	writeJSON(w, http.StatusCreated, entry)
}

func (h *APIHandler) trackFromURL(r *http.Request, url string) (*model.Track, error) {
	videoID := upstream.ExtractVideoID(url)
	if videoID == "" {
		return nil, errs.ErrValidation
	}

	// The catalog row is immutable once created, so an existing row
	// skips the resolver round trip entirely.
	existing, err := h.trackRepo.GetBySource(r.Context(), model.SourceYouTube, videoID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	info, err := h.resolver.Resolve(r.Context(), videoID)
	if err != nil {
		logger.Warn("Metadata resolution failed, using minimal metadata",
			logger.String("videoId", videoID), logger.ErrorField(err))
		info = upstream.MinimalTrackInfo(videoID)
	}

	return h.trackRepo.CreateOrGet(r.Context(), &model.Track{
		Title:      info.Title,
		Artist:     info.Artist,
		Duration:   info.Duration,
		ImageURL:   info.ImageURL,
		SourceType: model.SourceYouTube,
		SourceID:   info.SourceID,
		SourceURL:  info.SourceURL,
	})
}

// QueueActionRequest selects one playback or queue transition.
type QueueActionRequest struct {
	Action   string `json:"action"`
	EntryID  int64  `json:"entryId"`
	Position *int   `json:"position"`
	Seconds  *int   `json:"seconds"`
}

// QueueActionHandler dispatches the PATCH action body onto the
// playback engine (or the queue store, for reorder).
func (h *APIHandler) QueueActionHandler(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}
	if _, err := h.ownedStation(r, stationID); err != nil {
		writeError(w, err)
		return
	}

	var req QueueActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrValidation)
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "go-live":
		err = h.engine.GoLive(ctx, stationID)
	case "go-offline":
		err = h.engine.GoOffline(ctx, stationID)
	case "play-next":
		var next *model.QueueEntry
		next, err = h.engine.PlayNext(ctx, stationID)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"nowPlaying": next})
			return
		}
	case "skip":
		if req.EntryID == 0 {
			err = errs.ErrValidation
		} else {
			err = h.engine.SkipExplicit(ctx, stationID, req.EntryID)
		}
	case "sync-playing":
		if req.EntryID == 0 {
			err = errs.ErrValidation
		} else {
			err = h.engine.SyncPlaying(ctx, stationID, req.EntryID)
		}
	case "sync-position":
		if req.Seconds == nil {
			err = errs.ErrValidation
		} else {
			err = h.engine.SyncPosition(ctx, stationID, *req.Seconds)
		}
	case "reorder":
		if req.EntryID == 0 || req.Position == nil {
			err = errs.ErrValidation
		} else {
			err = h.queueRepo.Reorder(ctx, stationID, req.EntryID, *req.Position)
		}
	default:
		err = errs.ErrValidation
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveFromQueueHandler deletes one Pending entry (?itemId=) or the
// whole queue (?clearAll=true).
func (h *APIHandler) RemoveFromQueueHandler(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}
	if _, err := h.ownedStation(r, stationID); err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("clearAll") == "true" {
		if err := h.queueRepo.ClearAll(r.Context(), stationID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	itemID, err := strconv.ParseInt(r.URL.Query().Get("itemId"), 10, 64)
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}

	if err := h.queueRepo.Remove(r.Context(), stationID, itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
