package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Broadcast(Event{Type: "layer_progress", Layer: "MULLER2022/60", Samples: 42})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "layer_progress" || ev.Layer != "MULLER2022/60" || ev.Samples != 42 {
		t.Errorf("event = %+v", ev)
	}
}

// Broadcast is invoked from the grid store's notify callback, which runs
// on every prefetch worker; writes to one connection must be serialized.
func TestEventHubBroadcastConcurrent(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitForClients(t, hub, 1)

	const senders, perSender = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				hub.Broadcast(Event{Type: "layer_progress", Samples: worker})
			}
		}(i)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < senders*perSender; i++ {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		if ev.Type != "layer_progress" {
			t.Fatalf("event %d corrupted: %+v", i, ev)
		}
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
}

func TestEventHubDropsClosedClients(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(hubHandler(hub))
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}

func hubHandler(hub *EventHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", hub.Handle)
	return mux
}

func waitForClients(t *testing.T, hub *EventHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
}
