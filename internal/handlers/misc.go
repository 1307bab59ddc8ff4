package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"peer-server/internal/motd"
	"peer-server/internal/telemetry"
)

// Index handles GET /.
func Index(c *gin.Context) {
	c.String(http.StatusOK, "Hello world!")
}

// MOTDHandler serves the rotating message of the day.
func MOTDHandler(rotator *motd.Rotator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, rotator.Current())
	}
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
