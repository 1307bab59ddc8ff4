package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"peer-server/internal/models"
	"peer-server/internal/observability"
	"peer-server/internal/repositories"
	"peer-server/internal/telemetry"
)

const (
	maxMessageRunes     = 500
	defaultHistoryLimit = 50
)

// broadcaster is the feed surface the ingestion pipeline needs.
type broadcaster interface {
	Broadcast(chatID string, event models.FeedEvent)
}

// MessageHandler is the message ingestion pipeline: it gates on membership,
// validates content, appends to the durable log, and hands the message to
// the broadcaster. Appends and their broadcasts are serialized per chat.
type MessageHandler struct {
	chats    repositories.ChatRepository
	users    repositories.UserRepository
	messages repositories.MessageRepository
	feed     broadcaster
	locks    *chatLocks
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(chats repositories.ChatRepository, users repositories.UserRepository, messages repositories.MessageRepository, feed broadcaster, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chats:    chats,
		users:    users,
		messages: messages,
		feed:     feed,
		locks:    newChatLocks(),
		audit:    audit,
	}
}

// PostMessage handles POST /chats/:chat_id/messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	chatID := c.Param("chat_id")
	authorID := c.GetString("userID")

	var req struct {
		Timestamp int64  `json:"timestamp"`
		Content   string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	if _, err := h.chats.GetChat(c.Request.Context(), chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChatNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	author, err := h.users.GetUser(c.Request.Context(), authorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	// The membership check, the durable append, and the broadcast run under
	// the chat's lock: concurrent posts to one chat cannot interleave their
	// append-then-broadcast sequences, so feed order equals log order.
	unlock := h.locks.lock(chatID)
	defer unlock()

	member, err := h.chats.IsMember(c.Request.Context(), chatID, authorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "post denied")
		c.JSON(http.StatusForbidden, gin.H{"error": "UserNotInChat"})
		return
	}

	// Content is judged only after the chat and membership gates, so a
	// non-member always sees UserNotInChat regardless of what they sent.
	content := strings.TrimSpace(req.Content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "IllegalMessageContent"})
		return
	}

	msg, err := h.messages.AppendMessage(c.Request.Context(), chatID, authorID, content, req.Timestamp)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	observability.IncMessageIngested()

	// Best effort: delivery failures are handled inside the hub and never
	// affect the ingestion result.
	h.feed.Broadcast(chatID, models.FeedEvent{
		Cmd: "livemsg",
		Val: &models.LiveMessage{
			AuthorID:  msg.AuthorID,
			Handle:    author.Handle(),
			Timestamp: msg.Timestamp,
			Content:   msg.Content,
		},
	})

	h.emitAudit(c, "INFO", "Message posted")
	c.JSON(http.StatusCreated, gin.H{"error": "", "message": msg})
}

// GetHistory handles GET /chats/:chat_id/messages.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	chatID := c.Param("chat_id")

	limit := defaultHistoryLimit
	if q := c.Query("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
			return
		}
		limit = v
	}

	if _, err := h.chats.GetChat(c.Request.Context(), chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChatNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), chatID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"error": "", "messages": msgs})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
