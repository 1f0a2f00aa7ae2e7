package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, email, password string) (string, error) {
	return "", errors.New("not supported")
}

func (stubAuth) ResolveToken(ctx context.Context, token string) (int64, *int64, error) {
	if token == "tok-7" {
		return 7, nil, nil
	}
	return 0, nil, errors.New("unknown token")
}

func (h *Hub) roomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func waitForRoom(t *testing.T, hub *Hub, roomID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.roomSize(roomID) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never registered", roomID)
}

func TestStatusHandlerDeliversEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(StatusHandler(hub, stubAuth{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=tok-7"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForRoom(t, hub, "7")

	hub.SendToRoom("7", []byte(`{"noteId":1,"status":"DONE"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"noteId":1,"status":"DONE"}` {
		t.Errorf("msg = %s", msg)
	}

	// events for other owners never reach this connection
	hub.SendToRoom("8", []byte(`{"noteId":2,"status":"DONE"}`))
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("received an event addressed to another owner")
	}
}

func TestStatusHandlerRejectsBadToken(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(StatusHandler(hub, stubAuth{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded with a forged token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", resp)
	}

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, resp, err = websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial succeeded without a token")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", resp)
	}
}

func TestHubUnregisterClosesRoom(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(StatusHandler(hub, stubAuth{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=tok-7"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForRoom(t, hub, "7")

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.roomSize("7") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("room still populated after disconnect")
}
