package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"WaveFM/errs"
)

// StreamHandler relays the station's live audio to one listener. The
// response carries icy-* headers so media players display the station
// like a net radio. An idle station with an empty queue answers 204;
// an upstream failure at open time answers 502 after the station has
// already advanced past the broken track. Failures past this point
// never become an error response; the stream just ends and the client
// reconnects onto the next track.
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	listenKey := mux.Vars(r)["listenKey"]

	session, err := h.relay.Open(r.Context(), listenKey)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNoContent):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, errs.ErrNotFound):
			http.Error(w, "Station not found", http.StatusNotFound)
		case errors.Is(err, errs.ErrUpstreamUnavailable):
			http.Error(w, "Failed to get audio stream, advancing to next track", http.StatusBadGateway)
		default:
			writeError(w, err)
		}
		return
	}

	stream := session.Stream
	w.Header().Set("Content-Type", stream.MimeType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("icy-name", session.Station.Name)
	w.Header().Set("icy-description", session.Station.Description)
	w.Header().Set("icy-genre", "Various")
	w.Header().Set("icy-url", "https://"+r.Host+"/listen/"+listenKey)
	if stream.Bitrate > 0 {
		w.Header().Set("icy-br", strconv.Itoa(stream.Bitrate))
	} else {
		w.Header().Set("icy-br", "128")
	}
	if stream.SampleRate != "" {
		w.Header().Set("icy-sr", stream.SampleRate)
	} else {
		w.Header().Set("icy-sr", "44100")
	}
	w.Header().Set("x-now-playing", session.NowPlaying)
	w.WriteHeader(http.StatusOK)

	session.Run(r.Context(), w)
}
