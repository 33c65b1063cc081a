package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"WaveFM/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const defaultListenPushInterval = 5 * time.Second

// listenPushInterval is the cadence of now-playing pushes. It follows
// the owner player's position-checkpoint cadence so the elapsed time a
// listener sees is never staler than one checkpoint.
func (h *APIHandler) listenPushInterval() time.Duration {
	if h.cfg != nil && h.cfg.CheckpointSeconds > 0 {
		return time.Duration(h.cfg.CheckpointSeconds) * time.Second
	}
	return defaultListenPushInterval
}

// WSListenHandler pushes the listener projection over a websocket so
// the listen page tracks queue changes without polling. Connections
// never count toward the play counter.
func (h *APIHandler) WSListenHandler(w http.ResponseWriter, r *http.Request) {
	listenKey := mux.Vars(r)["listenKey"]

	view, err := h.projector.ListenViewByKey(r.Context(), listenKey, false)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(view); err != nil {
		return
	}

	// Drain client frames so pings and close frames get processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.listenPushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			view, err := h.projector.ListenViewByKey(r.Context(), listenKey, false)
			if err != nil {
				logger.Debug("Listen view refresh failed", logger.ErrorField(err))
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		}
	}
}
