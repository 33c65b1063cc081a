package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"WaveFM/config"
	"WaveFM/core/auth"
	"WaveFM/core/playback"
	"WaveFM/core/relay"
	"WaveFM/core/upstream"
	"WaveFM/errs"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
)

// PlaybackEngine is the slice of the playback engine the handlers call.
type PlaybackEngine interface {
	GoLive(ctx context.Context, stationID int64) error
	GoOffline(ctx context.Context, stationID int64) error
	PlayNext(ctx context.Context, stationID int64) (*model.QueueEntry, error)
	SkipExplicit(ctx context.Context, stationID, entryID int64) error
	SyncPlaying(ctx context.Context, stationID, entryID int64) error
	SyncPosition(ctx context.Context, stationID int64, seconds int) error
}

// ListenProjector builds the anonymous listener view.
type ListenProjector interface {
	ListenViewByKey(ctx context.Context, listenKey string, countListener bool) (*playback.ListenView, error)
}

// StreamRelay opens audio sessions for listeners.
type StreamRelay interface {
	Open(ctx context.Context, listenKey string) (*relay.Session, error)
}

// APIHandler carries the dependencies every HTTP handler shares.
type APIHandler struct {
	stationRepo repository.StationRepository
	trackRepo   repository.TrackRepository
	queueRepo   repository.QueueRepository
	historyRepo repository.HistoryRepository
	engine      PlaybackEngine
	projector   ListenProjector
	relay       StreamRelay
	resolver    upstream.Resolver
	cfg         *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	stationRepo repository.StationRepository,
	trackRepo repository.TrackRepository,
	queueRepo repository.QueueRepository,
	historyRepo repository.HistoryRepository,
	engine PlaybackEngine,
	projector ListenProjector,
	streamRelay StreamRelay,
	resolver upstream.Resolver,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		stationRepo: stationRepo,
		trackRepo:   trackRepo,
		queueRepo:   queueRepo,
		historyRepo: historyRepo,
		engine:      engine,
		projector:   projector,
		relay:       streamRelay,
		resolver:    resolver,
		cfg:         cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("Failed to encode response", logger.ErrorField(err))
		}
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Conflicts get
// their own status so the owner UI can show "already queued" instead of
// a generic failure.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, errs.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrDuplicateTrack):
		status, message = http.StatusConflict, "track is already in the queue"
	case errors.Is(err, errs.ErrInvalidState):
		status, message = http.StatusConflict, "entry is not in a state that allows this"
	case errors.Is(err, errs.ErrEmptyQueue):
		status, message = http.StatusBadRequest, "queue is empty"
	case errors.Is(err, errs.ErrValidation):
		status, message = http.StatusBadRequest, "invalid request"
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		status, message = http.StatusBadGateway, "upstream service unavailable"
	default:
		status, message = http.StatusInternalServerError, "internal server error"
		logger.Error("Unhandled error in request", logger.ErrorField(err))
	}

	writeJSON(w, status, map[string]string{"error": message})
}

// AuthMiddleware is a middleware function that checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ownedStation loads a station and checks the requester owns it.
// Non-owners get not-found rather than forbidden, so station internal
// IDs leak nothing.
func (h *APIHandler) ownedStation(r *http.Request, stationID int64) (*model.Station, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, errs.ErrNotFound
	}

	station, err := h.stationRepo.GetByID(r.Context(), stationID)
	if err != nil {
		return nil, err
	}
	if station == nil || station.OwnerID != userID {
		return nil, errs.ErrNotFound
	}
	return station, nil
}
