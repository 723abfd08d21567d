package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/rs/zerolog"
)

// EventProjectMessage is the only event exchanged on a project room.
const EventProjectMessage = "project-message"

// ChatMessage is the payload of a project-message event.
type ChatMessage struct {
	Message   string         `json:"message"`
	Sender    models.UserRef `json:"sender"`
	Timestamp time.Time      `json:"-"`
}

// Broadcaster delivers a message to every connection of a room.
type Broadcaster interface {
	Broadcast(projectID string, msg ChatMessage)
}

// MessageInterceptor inspects a message before it is relayed. It may rewrite
// msg in place and may later broadcast replies through room.
type MessageInterceptor interface {
	Intercept(ctx context.Context, projectID string, msg *ChatMessage, room Broadcaster)
}

// MessageSink stores relayed messages.
type MessageSink interface {
	Store(ctx context.Context, projectID string, msg ChatMessage) error
}

// Client is one live connection bound to a single room for its lifetime.
type Client struct {
	ID        string
	ProjectID string
	Identity  Identity
	Sender    models.UserRef

	send chan ChatMessage
}

// Send returns the channel of messages to write to the connection. It is
// closed when the client leaves the hub.
func (c *Client) Send() <-chan ChatMessage {
	return c.send
}

// Hub keeps one room per project and relays messages between its clients.
type Hub struct {
	mu           sync.RWMutex
	rooms        map[string]map[string]*Client
	interceptors []MessageInterceptor
	sink         MessageSink
	bufferSize   int
	closed       bool
	log          zerolog.Logger
}

type HubOption func(*Hub)

func WithInterceptor(i MessageInterceptor) HubOption {
	return func(h *Hub) { h.interceptors = append(h.interceptors, i) }
}

func WithSink(s MessageSink) HubOption {
	return func(h *Hub) { h.sink = s }
}

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[string]*Client),
		bufferSize: 64,
		log:        logger.Component("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join registers a connection in the room of projectID. Callers validate the
// handshake first; Join itself never fails unless the hub is closed.
func (h *Hub) Join(projectID string, id Identity, sender models.UserRef) (*Client, bool) {
	c := &Client{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Identity:  id,
		Sender:    sender,
		send:      make(chan ChatMessage, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	room, ok := h.rooms[projectID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[projectID] = room
	}
	room[c.ID] = c

	h.log.Debug().Str("client", c.ID).Str("project_id", projectID).Str("user_id", id.UserID).
		Int("room_size", len(room)).Msg("joined")
	return c, true
}

// Leave removes the client and closes its send channel. Calling it more than
// once is safe.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.ProjectID]
	if !ok {
		return
	}
	if _, ok := room[c.ID]; !ok {
		return
	}
	delete(room, c.ID)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.ProjectID)
	}

	h.log.Debug().Str("client", c.ID).Str("project_id", c.ProjectID).Msg("left")
}

// Relay runs the interceptors over a message read from c, stores it and sends
// it to every other client of the room. The sender identity is always the
// one bound at join time.
func (h *Hub) Relay(ctx context.Context, from *Client, text string) {
	msg := ChatMessage{
		Message:   text,
		Sender:    from.Sender,
		Timestamp: time.Now(),
	}
	for _, ic := range h.interceptors {
		ic.Intercept(ctx, from.ProjectID, &msg, h)
	}
	if strings.TrimSpace(msg.Message) == "" {
		return
	}

	h.store(ctx, from.ProjectID, msg)
	h.deliver(from.ProjectID, msg, from.ID)
}

// Broadcast stores msg and sends it to every client of the room.
func (h *Hub) Broadcast(projectID string, msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	h.store(context.Background(), projectID, msg)
	h.deliver(projectID, msg, "")
}

func (h *Hub) store(ctx context.Context, projectID string, msg ChatMessage) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Store(ctx, projectID, msg); err != nil {
		h.log.Error().Err(err).Str("project_id", projectID).Msg("failed to store message")
	}
}

// deliver never blocks: a client whose buffer is full misses the message.
func (h *Hub) deliver(projectID string, msg ChatMessage, exclude string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[projectID] {
		if id == exclude {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warn().Str("client", id).Str("project_id", projectID).Msg("send buffer full, message dropped")
		}
	}
}

// RoomCount returns the number of rooms with at least one client.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientCount returns the number of live clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomSize returns the number of clients in the room of projectID.
func (h *Hub) RoomSize(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Close disconnects every client and rejects further joins.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for projectID, room := range h.rooms {
		for _, c := range room {
			close(c.send)
		}
		delete(h.rooms, projectID)
	}
}

// QueueSink persists messages through a TaskQueue.
type QueueSink struct {
	queue TaskQueue
}

func NewQueueSink(queue TaskQueue) *QueueSink {
	return &QueueSink{queue: queue}
}

func (s *QueueSink) Store(ctx context.Context, projectID string, msg ChatMessage) error {
	return s.queue.Enqueue(ctx, &PersistMessageTask{
		ProjectID: projectID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
}

// PersistMessageProcessor appends queued messages to the project log.
func PersistMessageProcessor(projects *ProjectService) TaskProcessor {
	return func(ctx context.Context, task *PersistMessageTask) error {
		return projects.RecordMessage(ctx, task.ProjectID, &models.Message{
			Sender:    task.Sender,
			Text:      task.Message,
			Timestamp: task.Timestamp,
		})
	}
}
