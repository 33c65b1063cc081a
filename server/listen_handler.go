package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// ListenHandler serves the public now-playing projection. It answers
// whether or not anyone holds an open audio stream; a poll=true query
// suppresses the play counter so dashboards refreshing every few
// seconds don't inflate it.
func (h *APIHandler) ListenHandler(w http.ResponseWriter, r *http.Request) {
	listenKey := mux.Vars(r)["listenKey"]
	countListener := r.URL.Query().Get("poll") != "true"

	view, err := h.projector.ListenViewByKey(r.Context(), listenKey, countListener)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
