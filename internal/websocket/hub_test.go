package websocket

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bancho-server/internal/domain"
	"github.com/gorilla/websocket"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func fakeClient(id string) *Client {
	return &Client{id: id, send: make(chan []byte, 4)}
}

func TestBroadcastRoutesByMode(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	osu, mania := fakeClient("osu"), fakeClient("mania")
	hub.allClients[osu] = true
	hub.allClients[mania] = true
	hub.clients["osu"] = map[*Client]bool{osu: true}
	hub.clients["mania"] = map[*Client]bool{mania: true}

	hub.broadcastMessage(&Message{Type: MessageTypeScore, Mode: "osu", Data: domain.ScoreEvent{Username: "Alice"}})
	if len(osu.send) != 1 || len(mania.send) != 0 {
		t.Fatalf("score delivered to osu=%d mania=%d", len(osu.send), len(mania.send))
	}
	var got Message
	if err := json.Unmarshal(<-osu.send, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != MessageTypeScore || got.Mode != "osu" {
		t.Errorf("message = %+v", got)
	}

	hub.broadcastMessage(&Message{Type: MessageTypeAnnouncement, Data: domain.Announcement{Message: "hi"}})
	if len(osu.send) != 1 || len(mania.send) != 1 {
		t.Fatalf("announcement delivered to osu=%d mania=%d", len(osu.send), len(mania.send))
	}
}

func TestFeedOverWebsocket(t *testing.T) {
	hub := testHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, hub.logger, w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() Message {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		return m
	}

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Mode: "nope"}); err != nil {
		t.Fatal(err)
	}
	if m := read(); m.Type != MessageTypeError {
		t.Fatalf("bad mode reply = %+v", m)
	}

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Mode: "taiko"}); err != nil {
		t.Fatal(err)
	}
	if m := read(); m.Type != "subscribed" || m.Mode != "taiko" {
		t.Fatalf("ack = %+v", m)
	}

	hub.BroadcastScore(domain.ScoreEvent{Mode: "osu", Username: "ignored"})
	hub.BroadcastScore(domain.ScoreEvent{Mode: "taiko", Username: "Alice"})
	m := read()
	if m.Type != MessageTypeScore || m.Mode != "taiko" {
		t.Fatalf("feed message = %+v", m)
	}
	if data, ok := m.Data.(map[string]any); !ok || data["username"] != "Alice" {
		t.Errorf("feed data = %#v", m.Data)
	}
	if n := hub.GetTotalConnections(); n != 1 {
		t.Errorf("GetTotalConnections() = %d", n)
	}
	if n := hub.GetSubscriberCount("taiko"); n != 1 {
		t.Errorf("GetSubscriberCount(taiko) = %d", n)
	}
	if n := hub.GetSubscriberCount("osu"); n != 0 {
		t.Errorf("GetSubscriberCount(osu) = %d", n)
	}
}
