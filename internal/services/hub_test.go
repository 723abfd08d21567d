package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	stored []ChatMessage
}

func (s *recordingSink) Store(ctx context.Context, projectID string, msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, msg)
	return nil
}

func (s *recordingSink) messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.stored...)
}

func join(t *testing.T, h *Hub, projectID, name string) *Client {
	t.Helper()
	c, ok := h.Join(projectID, Identity{UserID: name, Email: name + "@example.com"}, models.UserRef{ID: name, Name: name})
	if !ok {
		t.Fatalf("Join(%s) rejected", name)
	}
	return c
}

func receive(t *testing.T, c *Client) ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Send():
		if !ok {
			t.Fatalf("client %s channel closed", c.Sender.ID)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.Sender.ID)
	}
	return ChatMessage{}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send():
		t.Errorf("client %s unexpectedly received %+v", c.Sender.ID, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RelayExcludesSender(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(WithSink(sink))
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")
	other := join(t, h, "p2", "carol")

	h.Relay(context.Background(), a, "hello")

	msg := receive(t, b)
	if msg.Message != "hello" || msg.Sender.ID != "alice" {
		t.Errorf("bob received %+v", msg)
	}
	assertSilent(t, a)
	assertSilent(t, b)
	assertSilent(t, other)

	if stored := sink.messages(); len(stored) != 1 || stored[0].Message != "hello" {
		t.Errorf("stored = %+v, expected the relayed message once", stored)
	}
}

func TestHub_BroadcastReachesEveryone(t *testing.T) {
	h := NewHub()
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")

	h.Broadcast("p1", ChatMessage{Message: "reply", Sender: AISender})

	for _, c := range []*Client{a, b} {
		if msg := receive(t, c); msg.Sender.ID != "ai" || msg.Message != "reply" {
			t.Errorf("client %s received %+v", c.Sender.ID, msg)
		}
	}
}

func TestHub_SkipsEmptyMessages(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(WithSink(sink))
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")

	h.Relay(context.Background(), a, "   ")
	assertSilent(t, b)
	if len(sink.messages()) != 0 {
		t.Error("empty messages should not be stored")
	}
}

func TestHub_LeaveAndCounts(t *testing.T) {
	h := NewHub()
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")
	join(t, h, "p2", "carol")

	if h.RoomCount() != 2 || h.ClientCount() != 3 || h.RoomSize("p1") != 2 {
		t.Errorf("rooms=%d clients=%d p1=%d", h.RoomCount(), h.ClientCount(), h.RoomSize("p1"))
	}

	h.Leave(a)
	h.Leave(a)
	if _, ok := <-a.Send(); ok {
		t.Error("send channel should be closed after Leave")
	}
	if h.RoomSize("p1") != 1 {
		t.Errorf("p1 size = %d after leave, expected 1", h.RoomSize("p1"))
	}

	h.Leave(b)
	if h.RoomCount() != 1 {
		t.Errorf("empty room should be removed, RoomCount() = %d", h.RoomCount())
	}
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	h := NewHub(WithSendBuffer(1))
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")

	h.Relay(context.Background(), a, "one")
	h.Relay(context.Background(), a, "two")

	if msg := receive(t, b); msg.Message != "one" {
		t.Errorf("first message = %q", msg.Message)
	}
	assertSilent(t, b)
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	a := join(t, h, "p1", "alice")

	h.Close()
	if _, ok := <-a.Send(); ok {
		t.Error("Close should close client channels")
	}
	h.Leave(a)
	if _, ok := h.Join("p1", Identity{}, models.UserRef{}); ok {
		t.Error("Join after Close should be rejected")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close", h.ClientCount())
	}
}

func TestQueueSink(t *testing.T) {
	queue := NewSyncQueue()
	var got *PersistMessageTask
	queue.SetProcessor(func(ctx context.Context, task *PersistMessageTask) error {
		got = task
		return nil
	})

	ts := time.Now()
	sink := NewQueueSink(queue)
	err := sink.Store(context.Background(), "p1", ChatMessage{Message: "hi", Sender: models.UserRef{ID: "u1"}, Timestamp: ts})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if got == nil || got.ProjectID != "p1" || got.Message != "hi" || got.Sender.ID != "u1" || !got.Timestamp.Equal(ts) {
		t.Errorf("task = %+v", got)
	}
}
