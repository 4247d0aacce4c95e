package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	h := runHub(t)
	sub := h.Subscribe()

	h.Broadcast([]byte("hello"))

	select {
	case msg := <-sub:
		if string(msg) != "hello" {
			t.Errorf("got %q, want %q", msg, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the broadcast")
	}
}

func TestUnsubscribe(t *testing.T) {
	h := runHub(t)
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Error("unsubscribed channel should be closed")
	}

	// Double unsubscribe must not panic.
	h.Unsubscribe(sub)
}

func TestMultipleSubscribers(t *testing.T) {
	h := runHub(t)
	sub1 := h.Subscribe()
	sub2 := h.Subscribe()

	h.Broadcast([]byte("x"))

	for i, sub := range []chan []byte{sub1, sub2} {
		select {
		case msg := <-sub:
			if string(msg) != "x" {
				t.Errorf("subscriber %d got %q", i, msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d did not receive the broadcast", i)
		}
	}
}

func TestWebSocketClientReceivesBroadcast(t *testing.T) {
	h := runHub(t)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	// Give the hub a moment to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	h.Broadcast([]byte(`{"type":"favorites-changed"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	if string(msg) != `{"type":"favorites-changed"}` {
		t.Errorf("got %q", msg)
	}
}
