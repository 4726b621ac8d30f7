package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/ws"
)

type messageFixture struct {
	chatRepo    *mocks.ChatRepositoryMock
	messageRepo *mocks.MessageRepositoryMock
	rt          *mocks.RealtimeMock
	router      *gin.Engine
}

func newMessageFixture(userID int) *messageFixture {
	return newMessageFixtureWithBlocks(userID, nil)
}

func newMessageFixtureWithBlocks(userID int, blocks BlockLookup) *messageFixture {
	f := &messageFixture{
		chatRepo:    new(mocks.ChatRepositoryMock),
		messageRepo: new(mocks.MessageRepositoryMock),
		rt:          new(mocks.RealtimeMock),
	}
	handler := NewMessageHandler(f.chatRepo, f.messageRepo, delivery.NewService(f.messageRepo), f.rt, blocks, storage.NewLocalStore("/srv/uploads", "/uploads/"), nil)
	f.router = setupRouter(userID, func(r *gin.Engine) {
		r.GET("/chats/:chat_id/messages", handler.ListMessages)
		r.POST("/chats/:chat_id/messages", handler.PostMessage)
		r.POST("/chats/:chat_id/messages/:message_id/reactions", handler.React)
		r.DELETE("/chats/:chat_id/messages/:message_id", handler.DeleteMessage)
		r.POST("/chats/:chat_id/seen", handler.MarkSeen)
	})
	return f
}

func (f *messageFixture) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rec
}

func groupChat() models.Chat {
	return models.Chat{ID: 5, IsGroupChat: true, AdminID: 1, Participants: []int{1, 2, 3}}
}

func TestListMessages(t *testing.T) {
	f := newMessageFixture(1)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil).Once()
	f.messageRepo.On("ListChatMessages", mock.Anything, 5).Return([]models.Message{{ID: 1, ChatID: 5, SenderID: 2}}, nil).Once()

	rec := f.do(http.MethodGet, "/chats/5/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.messageRepo.AssertExpectations(t)
}

func TestListMessagesNonMember(t *testing.T) {
	f := newMessageFixture(9)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil).Once()

	rec := f.do(http.MethodGet, "/chats/5/messages", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.messageRepo.AssertNotCalled(t, "ListChatMessages", mock.Anything, mock.Anything)
}

func TestPostMessageDeliversToRoomMembers(t *testing.T) {
	f := newMessageFixture(1)
	chat := groupChat()
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, repositories.NewMessage{
		ChatID:   5,
		SenderID: 1,
		Content:  "hi",
		Attachments: []models.Attachment{
			{URL: "/uploads/p.png", LocalPath: "/srv/uploads/p.png"},
			{URL: "https://cdn.example.com/q.png"},
		},
	}).Return(models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: "hi", Status: models.StatusSent}, nil).Once()
	f.chatRepo.On("SetLastMessage", mock.Anything, 5, 7).Return(nil).Once()
	f.chatRepo.On("ParticipantsOf", mock.Anything, 5).Return([]int{1, 2, 3}, nil).Once()
	f.rt.On("DeliveryEligible", 5, 2).Return(true).Once()
	f.rt.On("DeliveryEligible", 5, 3).Return(false).Once()
	f.messageRepo.On("MarkDelivered", mock.Anything, []int{7}, []int{2}).Return(nil).Once()
	f.rt.On("NotifyChatParticipants", mock.Anything, chat, 1, ws.EventNewMessage, mock.MatchedBy(func(m models.Message) bool {
		return m.ID == 7 && m.Status == models.StatusDelivered
	})).Return(1).Once()
	f.rt.On("NotifyUser", mock.Anything, 1, ws.EventMessageDelivered, models.DeliveryReceipt{
		ChatID: 5, MessageIDs: []int{7}, DeliveredTo: []int{2}, Status: models.StatusDelivered,
	}).Return(true).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages", `{"content":" hi ","attachments":["/uploads/p.png","https://cdn.example.com/q.png"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message models.Message `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.StatusDelivered, resp.Message.Status)
	assert.Equal(t, []int{2}, resp.Message.DeliveredTo)

	f.chatRepo.AssertExpectations(t)
	f.messageRepo.AssertExpectations(t)
	f.rt.AssertExpectations(t)
}

func TestPostMessageUsesMembershipAfterSave(t *testing.T) {
	f := newMessageFixture(1)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, mock.AnythingOfType("repositories.NewMessage")).
		Return(models.Message{ID: 9, ChatID: 5, SenderID: 1, Status: models.StatusSent}, nil).Once()
	f.chatRepo.On("SetLastMessage", mock.Anything, 5, 9).Return(nil).Once()
	f.chatRepo.On("ParticipantsOf", mock.Anything, 5).Return([]int{1, 2}, nil).Once()
	f.rt.On("DeliveryEligible", 5, 2).Return(false).Once()
	current := models.Chat{ID: 5, IsGroupChat: true, AdminID: 1, Participants: []int{1, 2}}
	f.rt.On("NotifyChatParticipants", mock.Anything, current, 1, ws.EventNewMessage, mock.Anything).Return(0).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages", `{"content":"who is left?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.rt.AssertNotCalled(t, "DeliveryEligible", 5, 3)
	f.rt.AssertExpectations(t)
}

func TestPostMessageSkipsParticipantsWhoBlockedTheSender(t *testing.T) {
	blocks := new(mocks.ContactRepositoryMock)
	f := newMessageFixtureWithBlocks(1, blocks)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, mock.AnythingOfType("repositories.NewMessage")).
		Return(models.Message{ID: 10, ChatID: 5, SenderID: 1, Status: models.StatusSent}, nil).Once()
	f.chatRepo.On("SetLastMessage", mock.Anything, 5, 10).Return(nil).Once()
	f.chatRepo.On("ParticipantsOf", mock.Anything, 5).Return([]int{1, 2, 3}, nil).Once()
	blocks.On("BlockedBy", mock.Anything, 1, []int{1, 2, 3}).Return(map[int]bool{3: true}, nil).Once()
	f.rt.On("DeliveryEligible", 5, 2).Return(true).Once()
	f.messageRepo.On("MarkDelivered", mock.Anything, []int{10}, []int{2}).Return(nil).Once()
	visible := models.Chat{ID: 5, IsGroupChat: true, AdminID: 1, Participants: []int{1, 2}}
	f.rt.On("NotifyChatParticipants", mock.Anything, visible, 1, ws.EventNewMessage, mock.Anything).Return(1).Once()
	f.rt.On("NotifyUser", mock.Anything, 1, ws.EventMessageDelivered, mock.Anything).Return(true).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.rt.AssertNotCalled(t, "DeliveryEligible", 5, 3)
	blocks.AssertExpectations(t)
	f.rt.AssertExpectations(t)
	f.messageRepo.AssertExpectations(t)
}

func TestPostMessageNobodyInRoomStaysSent(t *testing.T) {
	f := newMessageFixture(1)
	chat := groupChat()
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, mock.AnythingOfType("repositories.NewMessage")).
		Return(models.Message{ID: 8, ChatID: 5, SenderID: 1, Status: models.StatusSent}, nil).Once()
	f.chatRepo.On("SetLastMessage", mock.Anything, 5, 8).Return(nil).Once()
	f.chatRepo.On("ParticipantsOf", mock.Anything, 5).Return([]int{1, 2, 3}, nil).Once()
	f.rt.On("DeliveryEligible", 5, mock.Anything).Return(false)
	f.rt.On("NotifyChatParticipants", mock.Anything, chat, 1, ws.EventNewMessage, mock.Anything).Return(0).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages", `{"content":"anyone?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.messageRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
	f.rt.AssertNotCalled(t, "NotifyUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageValidation(t *testing.T) {
	f := newMessageFixture(1)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil)
	f.messageRepo.On("GetMessage", mock.Anything, 40).Return(models.Message{ID: 40, ChatID: 6}, nil).Once()

	cases := map[string]string{
		"empty":             `{"content":"  "}`,
		"too many files":    `{"attachments":["1","2","3","4","5","6","7"]}`,
		"foreign reply":     `{"content":"x","replyToId":40}`,
		"blank attachment":  `{"attachments":[" "]}`,
		"malformed payload": `{"content":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/chats/5/messages", body).Code)
		})
	}
	f.messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestReactToggles(t *testing.T) {
	f := newMessageFixture(2)
	chat := groupChat()
	groups := []models.ReactionGroup{{Emoji: "👍", Count: 1, Users: []int{2}}}
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil).Once()
	f.messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, ChatID: 5, SenderID: 1}, nil).Once()
	f.messageRepo.On("ToggleReaction", mock.Anything, 7, 2, "👍").Return(groups, nil).Once()
	update := models.ReactionUpdate{ChatID: 5, MessageID: 7, Reactions: groups}
	f.rt.On("NotifyChatParticipants", mock.Anything, chat, 2, ws.EventReaction, update).Return(2).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages/7/reactions", `{"emoji":"👍"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ReactionUpdate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, update, resp)
	f.rt.AssertExpectations(t)
}

func TestReactMessageFromOtherChat(t *testing.T) {
	f := newMessageFixture(2)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil).Once()
	f.messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, ChatID: 99}, nil).Once()

	rec := f.do(http.MethodPost, "/chats/5/messages/7/reactions", `{"emoji":"👍"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	f := newMessageFixture(2)
	chat := groupChat()
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(chat, nil)
	f.messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, ChatID: 5, SenderID: 1}, nil).Once()

	rec := f.do(http.MethodDelete, "/chats/5/messages/7", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	deleted := models.Message{ID: 8, ChatID: 5, SenderID: 2, IsDeleted: true}
	f.messageRepo.On("GetMessage", mock.Anything, 8).Return(models.Message{ID: 8, ChatID: 5, SenderID: 2}, nil).Once()
	f.messageRepo.On("SoftDelete", mock.Anything, 8, 2).Return(deleted, nil).Once()
	f.rt.On("NotifyChatParticipants", mock.Anything, chat, 2, ws.EventMessageDeleted, deleted).Return(2).Once()

	rec = f.do(http.MethodDelete, "/chats/5/messages/8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.messageRepo.AssertExpectations(t)
	f.rt.AssertExpectations(t)
}

func TestMarkSeenReturnsIDs(t *testing.T) {
	f := newMessageFixture(2)
	f.chatRepo.On("GetChat", mock.Anything, 5).Return(groupChat(), nil)
	f.rt.On("MarkSeen", mock.Anything, 5, 2, delivery.TriggerRead).Return([]int{3, 4}, nil).Once()

	rec := f.do(http.MethodPost, "/chats/5/seen", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chatId":5,"messageIds":[3,4]}`, rec.Body.String())

	f.rt.On("MarkSeen", mock.Anything, 5, 2, delivery.TriggerRead).Return(([]int)(nil), nil).Once()
	rec = f.do(http.MethodPost, "/chats/5/seen", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chatId":5,"messageIds":[]}`, rec.Body.String())
}
