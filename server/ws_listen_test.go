package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"WaveFM/core/playback"
)

func TestListenPushIntervalFollowsCheckpointCadence(t *testing.T) {
	env := newTestEnv(t)

	if got := env.handler.listenPushInterval(); got != defaultListenPushInterval {
		t.Fatalf("interval = %v, want default %v", got, defaultListenPushInterval)
	}

	env.handler.cfg.CheckpointSeconds = 10
	if got := env.handler.listenPushInterval(); got != 10*time.Second {
		t.Fatalf("interval = %v, want 10s", got)
	}
}

func TestWSListenPushesView(t *testing.T) {
	env := newTestEnv(t)
	env.handler.cfg.CheckpointSeconds = 1

	router := mux.NewRouter()
	router.HandleFunc("/ws/listen/{listenKey}", env.handler.WSListenHandler)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/listen/k1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var view playback.ListenView
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("failed to read initial push: %v", err)
	}
	if view.StationName != "Night Drive" {
		t.Fatalf("station = %q, want %q", view.StationName, "Night Drive")
	}
	if env.proj.lastCounted {
		t.Fatal("websocket view counted as a listener")
	}

	// The ticker runs on the checkpoint cadence, so a refresh arrives
	// well inside the read deadline.
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("failed to read ticker push: %v", err)
	}
}
