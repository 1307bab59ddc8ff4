package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"peer-server/internal/models"
	"peer-server/internal/observability"
)

// feedConn is the subset of *websocket.Conn the hub relies on, so tests can
// substitute fakes.
type feedConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// writeWait bounds every fan-out push. A hung transport must fail the write
// and take the eviction path rather than block the chat's ingestion lock.
const writeWait = 10 * time.Second

// client pairs a connection with a write mutex. Fan-out runs from concurrent
// request handlers and websocket writes are not concurrency-safe.
type client struct {
	conn feedConn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub is the per-chat registry of authenticated feed connections. Each user
// holds at most one connection per chat; registering a new one replaces and
// closes the previous.
type Hub struct {
	mu    sync.RWMutex
	feeds map[string]map[string]*client // chat id -> user id -> connection
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{feeds: make(map[string]map[string]*client)}
}

// Register adds an authenticated connection for the user in the chat. A
// previous connection for the same pair is closed and stops receiving.
func (h *Hub) Register(chatID, userID string, conn feedConn, info ConnInfo) {
	h.mu.Lock()
	room, ok := h.feeds[chatID]
	if !ok {
		room = make(map[string]*client)
		h.feeds[chatID] = room
	}
	prev := room[userID]
	room[userID] = &client{conn: conn, info: info}
	h.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	}
}

// Unregister removes the user's connection from the chat, but only when it is
// still the given one, so a replaced connection's teardown cannot evict its
// successor.
func (h *Hub) Unregister(chatID, userID string, conn feedConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.feeds[chatID]
	if !ok {
		return
	}
	if current, ok := room[userID]; ok && current.conn == conn {
		delete(room, userID)
		if len(room) == 0 {
			delete(h.feeds, chatID)
		}
	}
}

// Broadcast pushes the event to every connection registered for the chat. A
// failed write closes and evicts that connection; delivery to the others
// continues.
func (h *Hub) Broadcast(chatID string, event models.FeedEvent) {
	h.mu.RLock()
	room := h.feeds[chatID]
	targets := make(map[string]*client, len(room))
	for userID, cl := range room {
		targets[userID] = cl
	}
	h.mu.RUnlock()

	for userID, cl := range targets {
		if err := cl.send(event); err != nil {
			log.Printf("feed write error chat=%s user=%s: %v", chatID, userID, err)
			_ = cl.conn.Close()
			h.Unregister(chatID, userID, cl.conn)
			h.publishFeedError(chatID, cl.info, err)
		}
	}
}

func (h *Hub) publishFeedError(chatID string, info ConnInfo, err error) {
	observability.IncWSEvent("ws_error")
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"chat_id":     chatID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.feeds", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
}
