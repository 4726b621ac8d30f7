package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-realtime/internal/observability"
	"chat-realtime/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) int {
	return c.GetInt("userID")
}

// audit emits a record for a state change made by the caller. A nil emitter is a no-op.
func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, resource, text string) {
	emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
		Action:    action,
		Resource:  resource,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
	})
}
