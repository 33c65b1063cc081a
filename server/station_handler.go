package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"WaveFM/errs"
	"WaveFM/logger"
	"WaveFM/model"
)

// CreateStationRequest is the body for station creation.
type CreateStationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	IsPublic    *bool  `json:"isPublic"`
}

// CreateStationHandler creates a station for the authenticated owner.
// The listen key is a random token, generated here and never derived
// from the internal ID.
func (h *APIHandler) CreateStationHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrValidation)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, errs.ErrValidation)
		return
	}

	station := &model.Station{
		OwnerID:     userID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ImageURL:    req.ImageURL,
		IsPublic:    true,
		ListenKey:   uuid.NewString(),
	}
	if req.IsPublic != nil {
		station.IsPublic = *req.IsPublic
	}

	id, err := h.stationRepo.Create(r.Context(), station)
	if err != nil {
		writeError(w, err)
		return
	}
	station.ID = id

	logger.Info("Station created",
		logger.Int64("stationId", id),
		logger.Int64("ownerId", userID),
		logger.String("name", station.Name))
	writeJSON(w, http.StatusCreated, station)
}

// ListStationsHandler lists public stations for discovery.
func (h *APIHandler) ListStationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	stations, err := h.stationRepo.ListPublic(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": stations})
}

// StationDetail is the owner dashboard view: the station, its full
// queue, and recent play history.
type StationDetail struct {
	Station *model.Station            `json:"station"`
	Queue   []*model.QueueEntry       `json:"queue"`
	History []*model.PlayHistoryEntry `json:"history"`
}

// GetStationHandler returns the owner's full view of one station.
func (h *APIHandler) GetStationHandler(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}

	station, err := h.ownedStation(r, stationID)
	if err != nil {
		writeError(w, err)
		return
	}

	queue, err := h.queueRepo.ListByStation(r.Context(), stationID)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := h.historyRepo.ListRecentByStation(r.Context(), stationID, 20)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StationDetail{Station: station, Queue: queue, History: history})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
