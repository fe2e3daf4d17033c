package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qrrelay/internal/logger"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()

	log := logger.NewLogger(t.TempDir())
	hub := NewHubService(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		cancel()
		<-hub.done
		srv.Close()
		log.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Client count = %d, expected %d", hub.GetClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWithin(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return string(msg)
}

func TestHub_BroadcastReachesAllViewers(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()
	waitForClients(t, hub, 2)

	hub.Broadcast([]byte(`{"event":"ping"}`))

	if got := readWithin(t, a); got != `{"event":"ping"}` {
		t.Errorf("Viewer a got %s", got)
	}
	if got := readWithin(t, b); got != `{"event":"ping"}` {
		t.Errorf("Viewer b got %s", got)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv)
	waitForClients(t, hub, 1)

	a.Close()
	waitForClients(t, hub, 0)
}

func TestHub_BroadcastWithoutViewers(t *testing.T) {
	hub, _ := startHub(t)

	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte("nobody"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no viewers")
	}
}

func TestHub_CallsAfterStopDoNotBlock(t *testing.T) {
	log := logger.NewLogger(t.TempDir())
	defer log.Close()

	hub := NewHubService(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	for i := 0; i < 50; i++ {
		hub.Broadcast([]byte("late"))
	}
	hub.Unregister(nil)
}
