package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"peer-server/internal/models"
	"peer-server/internal/repositories"
	"peer-server/internal/session"
	"peer-server/internal/telemetry"
)

const (
	maxUsernameLen    = 20
	maxDisplayNameLen = 30
	bcryptCost        = 12

	allowedUsernameChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890-_=+.>,<?!^&*()[]{}|~`%$:;"
)

// AccountHandler manages registration, authentication, and user lookups.
type AccountHandler struct {
	users    repositories.UserRepository
	sessions session.Store
	audit    *telemetry.AuditEmitter
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(users repositories.UserRepository, sessions session.Store, audit *telemetry.AuditEmitter) *AccountHandler {
	return &AccountHandler{users: users, sessions: sessions, audit: audit}
}

// Register handles POST /users.
func (h *AccountHandler) Register(c *gin.Context) {
	var req struct {
		Username      string  `json:"username"`
		Discriminator string  `json:"discriminator"`
		Password      string  `json:"pswd"`
		DisplayName   *string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	if code := validateUsername(req.Username, req.DisplayName); code != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": code})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	user := models.User{
		ID:            newEntityID(),
		Username:      req.Username,
		Discriminator: req.Discriminator,
		DisplayName:   req.DisplayName,
		PasswordHash:  string(hash),
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "UsernameTaken"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	h.emitAudit(c, "INFO", "User registered")
	c.JSON(http.StatusCreated, gin.H{"error": "", "id": user.ID, "user": user.Handle()})
}

// validateUsername reports at most one error code. The character check runs
// last and overrides the length checks, so a name that is both over-long and
// malformed reports InvalidChars.
func validateUsername(username string, displayName *string) string {
	code := ""
	if len(username) > maxUsernameLen || (displayName != nil && len(*displayName) > maxDisplayNameLen) {
		code = "TooLong"
	} else if username == "" {
		code = "UsernameRequired"
	}
	for _, r := range username {
		if !strings.ContainsRune(allowedUsernameChars, r) {
			code = "InvalidChars"
			break
		}
	}
	return code
}

// Authenticate handles POST /auth and issues a session token on success.
func (h *AccountHandler) Authenticate(c *gin.Context) {
	var req struct {
		Handle   string `json:"handle" binding:"required"`
		Password string `json:"pswd"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	parts := strings.SplitN(req.Handle, "#", 2)
	if len(parts) != 2 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}
	username, discriminator := parts[0], parts[1]

	user, err := h.users.GetUserByHandle(c.Request.Context(), username, discriminator)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.emitAudit(c, "ERROR", "credential mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}

	token, err := h.sessions.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	h.emitAudit(c, "INFO", "Session issued")
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"user_id":       user.ID,
		"token":         token,
		"username":      user.Username,
		"discriminator": user.Discriminator,
	})
}

// Logout handles POST /logout and revokes the caller's session token.
func (h *AccountHandler) Logout(c *gin.Context) {
	if token := c.GetString("sessionToken"); token != "" {
		h.sessions.Revoke(token)
	}
	h.emitAudit(c, "INFO", "Session revoked")
	c.JSON(http.StatusOK, gin.H{"error": ""})
}

// GetUser handles GET /users/:id and returns public account fields.
func (h *AccountHandler) GetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "UserNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	chats, err := h.users.ListMemberships(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":         "",
		"id":            user.ID,
		"username":      user.Username,
		"discriminator": user.Discriminator,
		"display_name":  user.DisplayName,
		"chats":         chats,
	})
}

// LookupHandle handles GET /userid/:username/:discriminator.
func (h *AccountHandler) LookupHandle(c *gin.Context) {
	user, err := h.users.GetUserByHandle(c.Request.Context(), c.Param("username"), c.Param("discriminator"))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "UserNotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": "", "user_id": user.ID})
}

// ListUsers handles GET /users.
func (h *AccountHandler) ListUsers(c *gin.Context) {
	ids, err := h.users.ListUserIDs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_count": len(ids), "users": ids})
}

func (h *AccountHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
