package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/platform/events"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 4)}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", events.TopicDeclarations)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(events.TopicDeclarations) != 1 {
		t.Fatalf("expected client registered on declarations topic")
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(events.TopicDeclarations) != 0 {
		t.Fatalf("expected client removed")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}

	// A second unregister must not panic on the closed channel.
	hub.Unregister(client)
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subscriber := newClient("sub", events.TopicDeclarations)
	other := newClient("other", "inventory")
	hub.Register(subscriber)
	hub.Register(other)

	evt := events.Event{Type: events.TypeDeclarationSubmitted, Topic: events.TopicDeclarations, ResourceID: "abc"}
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-subscriber.Send:
		var got events.Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ResourceID != "abc" {
			t.Errorf("expected resource abc, got %s", got.ResourceID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"t"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), events.Event{Topic: "t"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if len(client.Send) != 1 {
		t.Errorf("expected exactly one buffered event, got %d", len(client.Send))
	}
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", events.TopicDeclarations)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"inventory"}})
	if hub.TopicCount("inventory") != 1 {
		t.Fatal("expected subscription to inventory")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{events.TopicDeclarations}})
	if hub.TopicCount(events.TopicDeclarations) != 0 {
		t.Fatal("expected declarations subscription removed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "inventory" {
		t.Errorf("unexpected client topics %v", client.Topics)
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(events.TopicDeclarations) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(context.Background(), events.Event{Type: events.TypeDeclarationSubmitted, Topic: events.TopicDeclarations})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), events.TypeDeclarationSubmitted) {
		t.Errorf("unexpected message %s", msg)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), []string{"https://staff.bloodbank.test"})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.test")
	if h.upgrader.CheckOrigin(req) {
		t.Error("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://staff.bloodbank.test")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected configured origin to be allowed")
	}
}
