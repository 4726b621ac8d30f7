package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/telemetry"
)

func TestAuditTestRoutePublishes(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-realtime", "test")
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.RequestID == "req-1" && env.Payload.Action == "debug.audit_test" && env.UserID != nil && *env.UserID == "4"
	})).Return(nil).Once()

	router := setupRouter(4, func(r *gin.Engine) {
		RegisterDebugRoutes(r, emitter, true)
	})
	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set(observability.RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","requestId":"req-1"}`, rec.Body.String())
	publisher.AssertExpectations(t)
}
