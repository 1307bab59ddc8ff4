package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"peer-server/internal/repositories"
	"peer-server/internal/telemetry"
)

// ChatHandler manages chat creation, membership, and lookups. Only the chat
// owner may invite or remove members; the owner can never be removed, which
// keeps the owner a member for the life of the chat.
type ChatHandler struct {
	chats repositories.ChatRepository
	users repositories.UserRepository
	audit *telemetry.AuditEmitter
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, users: users, audit: audit}
}

// CreateChat handles POST /chats.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	ownerID := c.GetString("userID")
	chat, err := h.chats.CreateChat(c.Request.Context(), newEntityID(), req.Name, ownerID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	h.emitAudit(c, "INFO", "Chat created")
	c.JSON(http.StatusCreated, gin.H{"error": "", "id": chat.ID})
}

// Invite handles POST /chats/:chat_id/members. Only the owner may invite.
func (h *ChatHandler) Invite(c *gin.Context) {
	chatID := c.Param("chat_id")

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChatNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	if c.GetString("userID") != chat.OwnerID {
		h.emitAudit(c, "ERROR", "invite denied")
		c.JSON(http.StatusForbidden, gin.H{"error": "NoInvitePerms"})
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "UserNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	if err := h.chats.AddMember(c.Request.Context(), chatID, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "UserAlreadyInChat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	h.emitAudit(c, "INFO", "Member invited")
	c.JSON(http.StatusOK, gin.H{"error": ""})
}

// RemoveMember handles DELETE /chats/:chat_id/members/:user_id. Only the
// owner may remove, and the owner itself cannot be removed.
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chatID := c.Param("chat_id")
	removeeID := c.Param("user_id")

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChatNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	member, err := h.chats.IsMember(c.Request.Context(), chatID, removeeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "UserNotInChat"})
		return
	}

	if c.GetString("userID") != chat.OwnerID {
		h.emitAudit(c, "ERROR", "remove denied")
		c.JSON(http.StatusForbidden, gin.H{"error": "NoRemovePerms"})
		return
	}

	if removeeID == chat.OwnerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "CannotRemoveOwner"})
		return
	}

	if err := h.chats.RemoveMember(c.Request.Context(), chatID, removeeID); err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "UserNotInChat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	h.emitAudit(c, "INFO", "Member removed")
	c.JSON(http.StatusOK, gin.H{"error": ""})
}

// GetChatInfo handles GET /chats/:chat_id and returns public chat fields.
func (h *ChatHandler) GetChatInfo(c *gin.Context) {
	chat, err := h.chats.GetChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChatNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":   "",
		"id":      chat.ID,
		"name":    chat.Name,
		"owner":   chat.OwnerID,
		"members": chat.Members,
	})
}

// ListChats handles GET /chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	ids, err := h.chats.ListChatIDs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_count": len(ids), "chats": ids})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
