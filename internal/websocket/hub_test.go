package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"autodialer/internal/notify"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsNotifications(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	all := dial(t, srv, "")
	only7 := dial(t, srv, "?campaign=7")
	waitClients(t, hub, 2)

	hub.Publish(ctx, notify.Notification{Type: notify.CallAssigned, CallID: "a", CampaignID: 3, Trunk: "204", Channel: 1})
	hub.Publish(ctx, notify.Notification{Type: notify.CampaignEnded, CampaignID: 7, Completed: 2, Total: 2})

	var first, second Message
	all.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := all.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := all.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if first.Type != notify.CallAssigned || first.Data.Trunk != "204" || second.Type != notify.CampaignEnded {
		t.Fatalf("all client got %+v then %+v", first, second)
	}

	var filtered Message
	only7.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := only7.ReadJSON(&filtered); err != nil {
		t.Fatal(err)
	}
	if filtered.Type != notify.CampaignEnded || filtered.Data.Total != 2 {
		t.Fatalf("filtered client got %+v", filtered)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub() // not running
	n := notify.Notification{Type: notify.CallEnded, CallID: "x"}

	var dropped int
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		if err := hub.Publish(context.Background(), n); err != nil {
			dropped++
		}
	}
	if dropped != 10 {
		t.Fatalf("dropped = %d, want 10", dropped)
	}

	var msg Message
	if err := json.Unmarshal((<-hub.broadcast).data, &msg); err != nil || msg.Data.CallID != "x" {
		t.Fatalf("queued message = %+v, %v", msg, err)
	}
}
