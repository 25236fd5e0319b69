package consolefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return hub, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClientCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("ClientCount() never reached %d, still %d", want, hub.ClientCount())
}

func TestHub_BroadcastsToConnectedClient(t *testing.T) {
	hub, url := startTestHub(t)

	conn := dial(t, url)
	waitForClientCount(t, hub, 1)

	hub.PublishSolution(SolutionEvent{Timeslot: 12, LeadingZeroBits: 9})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Kind != EventSolution {
		t.Errorf("Kind = %q, want %q", ev.Kind, EventSolution)
	}
}

func TestHub_ClientCountDropsOnDisconnect(t *testing.T) {
	hub, url := startTestHub(t)
	conn := dial(t, url)
	waitForClientCount(t, hub, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() != 0 {
		// The client's readPump notices the closed connection and
		// unregisters it; the loop keeps publishing until that happens.
		hub.Publish(Event{Kind: EventSnapshot, Data: ChainSnapshot{}})
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after disconnect", hub.ClientCount())
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	hub := New([]string{"https://console.example"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial from a disallowed origin to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}
