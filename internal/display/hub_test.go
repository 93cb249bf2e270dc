package display

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spec-kit/queue-service/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestHubSendsLastFrameAndBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	s := domain.NewSystemState(2)
	s.Version = 3
	tr := NewTracker()
	if err := hub.Publish(tr.Frame(s)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for len(hub.broadcast) > 0 {
		time.Sleep(time.Millisecond)
	}

	conn := dial(t, srv)
	if f := readFrame(t, conn); f.Version != 3 {
		t.Fatalf("expected cached frame v3, got %d", f.Version)
	}

	s.Version = 4
	s.Queue = append(s.Queue, domain.Ticket{Code: "A01"})
	if err := hub.Publish(tr.Frame(s)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	f := readFrame(t, conn)
	if f.Version != 4 || len(f.Waiting) != 1 {
		t.Fatalf("unexpected broadcast %+v", f)
	}
	if hub.Clients() != 1 {
		t.Fatalf("expected one client, got %d", hub.Clients())
	}
}
