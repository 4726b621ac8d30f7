package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/ws"
)

func setupGroupRouter(userID int, handler *GroupHandler) *gin.Engine {
	return setupRouter(userID, func(r *gin.Engine) {
		r.POST("/groups", handler.CreateGroup)
		r.GET("/groups/:chat_id", handler.GetGroup)
		r.PATCH("/groups/:chat_id", handler.RenameGroup)
		r.DELETE("/groups/:chat_id", handler.DeleteGroup)
		r.DELETE("/groups/:chat_id/leave", handler.LeaveGroup)
		r.POST("/groups/:chat_id/participants/:participant_id", handler.AddParticipant)
		r.DELETE("/groups/:chat_id/participants/:participant_id", handler.RemoveParticipant)
	})
}

func group() models.Chat {
	return models.Chat{ID: 8, Name: "team", IsGroupChat: true, AdminID: 1, Participants: []int{1, 2, 3}}
}

func TestCreateGroupSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, new(mocks.MessageRepositoryMock), userRepo, rt, nil, nil)
	router := setupGroupRouter(1, handler)

	userRepo.On("BulkUsers", mock.Anything, []int{2, 3}).Return([]models.User{{ID: 2}, {ID: 3}}, nil).Once()
	chatRepo.On("CreateChat", mock.Anything, "team", true, 1, []int{1, 2, 3}).Return(group(), nil).Once()
	userRepo.On("BulkUsers", mock.Anything, []int{1, 2, 3}).Return([]models.User{{ID: 1}, {ID: 2}, {ID: 3}}, nil).Once()
	rt.On("NotifyChatParticipants", mock.Anything, group(), 1, ws.EventNewChat, mock.AnythingOfType("models.ChatSummary")).Return(2).Once()

	body := bytes.NewBufferString(`{"name":" team ","participants":[2,3,3]}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestCreateGroupValidation(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewGroupHandler(new(mocks.ChatRepositoryMock), nil, userRepo, nil, nil, nil)
	router := setupGroupRouter(1, handler)

	userRepo.On("BulkUsers", mock.Anything, []int{2, 9}).Return([]models.User{{ID: 2}}, nil).Once()

	cases := map[string]string{
		"creator listed":      `{"name":"g","participants":[1,2,3]}`,
		"too few members":     `{"name":"g","participants":[2,2]}`,
		"missing name":        `{"participants":[2,3]}`,
		"blank name":          `{"name":"  ","participants":[2,3]}`,
		"unknown participant": `{"name":"g","participants":[2,9]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRenameGroupAdminOnly(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, nil, nil, rt, nil, nil)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil)

	rec := httptest.NewRecorder()
	setupGroupRouter(2, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/groups/8", bytes.NewBufferString(`{"name":"x"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	renamed := group()
	renamed.Name = "x"
	chatRepo.On("RenameChat", mock.Anything, 8, "x").Return(renamed, nil).Once()
	rt.On("NotifyChatParticipants", mock.Anything, renamed, 0, ws.EventNewGroupName, renamed).Return(2).Once()

	rec = httptest.NewRecorder()
	setupGroupRouter(1, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/groups/8", bytes.NewBufferString(`{"name":"x"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	rt.AssertExpectations(t)
}

func TestGetGroupOnDirectChatIsNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil, nil, nil, nil, nil)
	chatRepo.On("GetChat", mock.Anything, 4).Return(models.Chat{ID: 4, Participants: []int{1, 2}}, nil).Once()

	rec := httptest.NewRecorder()
	setupGroupRouter(1, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups/4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddParticipant(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, new(mocks.MessageRepositoryMock), userRepo, rt, nil, nil)
	router := setupGroupRouter(1, handler)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil)
	userRepo.On("GetUser", mock.Anything, 4).Return(models.User{ID: 4}, nil).Once()
	chatRepo.On("AddParticipant", mock.Anything, 8, 4).Return(nil).Once()
	userRepo.On("BulkUsers", mock.Anything, []int{1, 2, 3, 4}).Return([]models.User{}, nil).Once()
	rt.On("NotifyUser", mock.Anything, 4, ws.EventNewChat, mock.AnythingOfType("models.ChatSummary")).Return(true).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/8/participants/4", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/8/participants/2", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	chatRepo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestRemoveParticipantEvicts(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, nil, nil, rt, nil, nil)
	router := setupGroupRouter(1, handler)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil)
	chatRepo.On("RemoveParticipant", mock.Anything, 8, 3).Return(nil).Once()
	rt.On("EvictFromChat", 3, 8).Once()
	rt.On("NotifyUser", mock.Anything, 3, ws.EventLeaveChat, mock.AnythingOfType("models.Chat")).Return(true).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8/participants/3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	for path, want := range map[string]int{
		"/groups/8/participants/1": http.StatusBadRequest,
		"/groups/8/participants/9": http.StatusNotFound,
	} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}

	chatRepo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestLeaveGroup(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, nil, nil, rt, nil, nil)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil)
	chatRepo.On("RemoveParticipant", mock.Anything, 8, 2).Return(nil).Once()
	rt.On("EvictFromChat", 2, 8).Once()

	rec := httptest.NewRecorder()
	setupGroupRouter(2, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8/leave", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	setupGroupRouter(1, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8/leave", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "admin cannot leave")

	chatRepo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestDeleteGroup(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	rt := new(mocks.RealtimeMock)
	handler := NewGroupHandler(chatRepo, nil, nil, rt, nil, nil)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil)
	chatRepo.On("DeleteChat", mock.Anything, 8).Return([]models.Attachment{}, nil).Once()
	for _, id := range []int{1, 2, 3} {
		rt.On("EvictFromChat", id, 8).Once()
	}
	rt.On("NotifyChatParticipants", mock.Anything, group(), 1, ws.EventLeaveChat, group()).Return(2).Once()

	rec := httptest.NewRecorder()
	setupGroupRouter(2, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	setupGroupRouter(1, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	chatRepo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestDeleteGroupRepoNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil, nil, new(mocks.RealtimeMock), nil, nil)

	chatRepo.On("GetChat", mock.Anything, 8).Return(group(), nil).Once()
	chatRepo.On("DeleteChat", mock.Anything, 8).Return(([]models.Attachment)(nil), repositories.ErrChatNotFound).Once()

	rec := httptest.NewRecorder()
	setupGroupRouter(1, handler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/8", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
