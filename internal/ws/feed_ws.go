package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"peer-server/internal/observability"
	"peer-server/internal/repositories"
	"peer-server/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Feed handshake frames. The server opens with {"cmd":"auth"}; the client
// answers with its session token; the server replies with an error payload
// (empty on success) before any livemsg frame.
type challengeFrame struct {
	Cmd string `json:"cmd"`
}

type authFrame struct {
	Cmd string `json:"cmd"`
	Val struct {
		Token string `json:"token"`
	} `json:"val"`
}

type resultFrame struct {
	Error string `json:"error"`
}

// FeedHandler runs the feed connection handshake and hands authenticated
// connections to the hub.
type FeedHandler struct {
	hub         *Hub
	chats       repositories.ChatRepository
	sessions    session.Store
	authTimeout time.Duration
}

// NewFeedHandler constructs a FeedHandler.
func NewFeedHandler(hub *Hub, chats repositories.ChatRepository, sessions session.Store, authTimeout time.Duration) *FeedHandler {
	return &FeedHandler{hub: hub, chats: chats, sessions: sessions, authTimeout: authTimeout}
}

// Handle upgrades the connection and runs the auth handshake. The connection
// is registered for fan-out only after the token resolves to a chat member.
func (h *FeedHandler) Handle(c *gin.Context) {
	chatID := c.Param("chat_id")

	ctx, span := otel.Tracer("peer-server/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if err := conn.WriteJSON(challengeFrame{Cmd: "auth"}); err != nil {
		conn.Close()
		return
	}

	// Half-open connections may not leak: the client gets authTimeout to
	// answer the challenge before the read fails and the transport closes.
	_ = conn.SetReadDeadline(time.Now().Add(h.authTimeout))

	var frame authFrame
	if err := conn.ReadJSON(&frame); err != nil {
		observability.IncWSEvent("ws_auth_timeout")
		conn.Close()
		return
	}
	if frame.Cmd != "auth" {
		h.reject(conn, "AuthRequired")
		return
	}

	userID, err := h.sessions.Resolve(frame.Val.Token)
	if err != nil {
		h.reject(conn, "InvalidSession")
		return
	}

	member, err := h.chats.IsMember(ctx, chatID, userID)
	if err != nil || !member {
		h.reject(conn, "UserNotInChat")
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	if err := conn.WriteJSON(resultFrame{Error: ""}); err != nil {
		conn.Close()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestID(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceID(c.Request),
		IP:          observability.ClientIP(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.Register(chatID, userID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.feeds", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"chat_id":     chatID,
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
				"duration_ms": 0,
				"reason":      "",
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// Keep the connection alive and clean up on close.
	go func() {
		var closeReason string
		defer func() {
			h.hub.Unregister(chatID, userID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(ctx, "ws_events.feeds", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload: map[string]interface{}{
					"ws": map[string]interface{}{
						"chat_id":     chatID,
						"event":       "ws_disconnect",
						"conn_id":     info.ConnID,
						"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
						"reason":      closeReason,
					},
					"identity": map[string]interface{}{
						"user_id":   info.UserID,
						"device_id": info.DeviceID,
						"ip":        info.IP,
					},
				},
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				return
			}
		}
	}()
}

func (h *FeedHandler) reject(conn *websocket.Conn, code string) {
	observability.IncWSEvent("ws_reject")
	_ = conn.WriteJSON(resultFrame{Error: code})
	conn.Close()
}
