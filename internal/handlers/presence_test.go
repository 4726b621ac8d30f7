package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/mocks"
)

func TestOnlineStatus(t *testing.T) {
	rt := new(mocks.RealtimeMock)
	handler := NewPresenceHandler(rt)
	router := setupRouter(1, func(r *gin.Engine) {
		r.GET("/users/online", handler.OnlineStatus)
	})

	rt.On("OnlineStatus", []int{2, 3}).Return(map[int]bool{2: true, 3: false}).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/online?ids=2,%203", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"2":true,"3":false}`, rec.Body.String())

	for _, q := range []string{"", "?ids=", "?ids=a", "?ids=1,-2"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/online"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rt.AssertExpectations(t)
}

func TestDebugRoutesDisabledByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	r = gin.New()
	RegisterDebugRoutes(r, nil, true)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
