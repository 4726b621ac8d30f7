package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/db"
	"chat-realtime/internal/delivery"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/jobs"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/ws"
)

type stack struct {
	srv    *httptest.Server
	jwt    *auth.JWT
	tokens map[string]string
	ids    map[string]int
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Connect(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)

	chats := repositories.NewChatRepo(conn)
	messages := repositories.NewMessageRepo(conn)
	users := repositories.NewUserRepo(conn)
	stories := repositories.NewStoryRepo(conn)
	contacts := repositories.NewContactRepo(conn)
	receipts := delivery.NewService(messages)
	blobs := storage.NewLocalStore(t.TempDir(), "/uploads/")
	jwt := auth.NewJWT("stack-secret")

	rt := ws.NewServer(ws.NewHub(), chats, users, receipts, jwt, ws.Options{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", rt.Handle)
	handlers.RegisterRoutes(router, middleware.AuthMiddleware(jwt), handlers.Handlers{
		Chat:     handlers.NewChatHandler(chats, messages, users, rt, blobs, nil),
		Group:    handlers.NewGroupHandler(chats, messages, users, rt, blobs, nil),
		Message:  handlers.NewMessageHandler(chats, messages, receipts, rt, contacts, blobs, nil),
		Status:   handlers.NewStatusHandler(stories, chats, users, blobs, blobs, jobs.NewStatusExpiry(stories, blobs), nil, time.Hour),
		Presence: handlers.NewPresenceHandler(rt),
		Contact:  handlers.NewContactHandler(contacts, users, nil),
	})

	s := &stack{srv: httptest.NewServer(router), jwt: jwt, tokens: map[string]string{}, ids: map[string]int{}}
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := users.CreateUser(ctx, name, "")
		require.NoError(t, err)
		token, err := jwt.Sign(auth.Identity{UserID: u.ID, Username: name}, time.Hour)
		require.NoError(t, err)
		s.ids[name] = u.ID
		s.tokens[name] = token
	}

	t.Cleanup(func() {
		rt.Shutdown()
		s.srv.Close()
		conn.Close()
	})
	return s
}

func (s *stack) call(t *testing.T, who, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.tokens[who])
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type frame struct {
	Event ws.Event        `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *stack) online(t *testing.T, who string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + s.tokens[who]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	expect(t, conn, ws.EventConnected)
	emit(t, conn, "user-went-online", nil)
	settle(t, conn)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload := map[string]any{"event": event}
	if data != nil {
		payload["data"] = data
	}
	require.NoError(t, conn.WriteJSON(payload))
}

func expect(t *testing.T, conn *websocket.Conn, event ws.Event) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f.Data
		}
	}
}

// settle waits until every event the connection sent earlier has been handled.
func settle(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	emit(t, conn, "checkOnlineStatus", map[string]any{"userIds": []int{}})
	expect(t, conn, ws.EventOnlineStatusResponse)
}

func TestRESTAndRealtimeTogether(t *testing.T) {
	s := newStack(t)
	alice := s.online(t, "alice")
	bob := s.online(t, "bob")

	var opened struct {
		Chat models.ChatSummary `json:"chat"`
	}
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/direct/%d", s.ids["bob"]), nil, &opened))
	chatID := opened.Chat.ID
	var announced models.ChatSummary
	require.NoError(t, json.Unmarshal(expect(t, bob, ws.EventNewChat), &announced))
	assert.Equal(t, chatID, announced.ID)

	// bob has the chat open: the message is delivered on creation
	emit(t, bob, "joinChat", map[string]int{"chatId": chatID})
	settle(t, bob)

	var posted struct {
		Message models.Message `json:"message"`
	}
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/%d/messages", chatID), map[string]string{"content": "hi"}, &posted))
	first := posted.Message
	assert.Equal(t, models.StatusDelivered, first.Status)
	assert.Equal(t, []int{s.ids["bob"]}, first.DeliveredTo)
	expect(t, bob, ws.EventNewMessage)
	expect(t, alice, ws.EventMessageDelivered)

	// bob closes the chat: the next message stays sent
	emit(t, bob, "leaveChat", map[string]int{"chatId": chatID})
	settle(t, bob)
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/%d/messages", chatID), map[string]string{"content": "still there?"}, &posted))
	second := posted.Message
	assert.Equal(t, models.StatusSent, second.Status)

	var seen struct {
		MessageIDs []int `json:"messageIds"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodPost, fmt.Sprintf("/chats/%d/seen", chatID), nil, &seen))
	assert.Equal(t, []int{first.ID, second.ID}, seen.MessageIDs)

	var receipt models.SeenReceipt
	require.NoError(t, json.Unmarshal(expect(t, alice, ws.EventMessageSeen), &receipt))
	assert.Equal(t, []int{first.ID, second.ID}, receipt.MessageIDs)
	assert.Equal(t, s.ids["bob"], receipt.SeenBy)

	var history struct {
		Messages []models.Message `json:"messages"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "alice", http.MethodGet, fmt.Sprintf("/chats/%d/messages", chatID), nil, &history))
	require.Len(t, history.Messages, 2)
	for _, m := range history.Messages {
		assert.Equal(t, models.StatusSeen, m.Status)
		assert.Equal(t, []int{s.ids["bob"]}, m.SeenBy)
	}

	var online map[string]bool
	require.Equal(t, http.StatusOK, s.call(t, "carol", http.MethodGet, fmt.Sprintf("/users/online?ids=%d,%d", s.ids["alice"], s.ids["carol"]), nil, &online))
	assert.Equal(t, map[string]bool{fmt.Sprint(s.ids["alice"]): true, fmt.Sprint(s.ids["carol"]): false}, online)

	assert.Equal(t, http.StatusForbidden, s.call(t, "carol", http.MethodGet, fmt.Sprintf("/chats/%d/messages", chatID), nil, nil))
}

func TestStatusesFollowChatPartners(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/direct/%d", s.ids["bob"]), nil, nil))

	var created struct {
		Status models.Story `json:"status"`
	}
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, "/statuses", map[string]string{"type": "text", "text": "hello"}, &created))

	var feed struct {
		Statuses []models.StoryFeedEntry `json:"statuses"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/statuses/feed", nil, &feed))
	require.Len(t, feed.Statuses, 1)
	assert.Equal(t, "alice", feed.Statuses[0].User.Username)

	require.Equal(t, http.StatusOK, s.call(t, "carol", http.MethodGet, "/statuses/feed", nil, &feed))
	assert.Empty(t, feed.Statuses)

	path := fmt.Sprintf("/statuses/%d/view", created.Status.ID)
	assert.Equal(t, http.StatusForbidden, s.call(t, "carol", http.MethodPost, path, nil, nil))
	assert.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodPost, path, nil, nil))
	assert.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodPost, path, nil, nil))

	var mine struct {
		Statuses []struct {
			ViewCount int `json:"viewCount"`
		} `json:"statuses"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "alice", http.MethodGet, "/statuses/me", nil, &mine))
	require.Len(t, mine.Statuses, 1)
	assert.Equal(t, 1, mine.Statuses[0].ViewCount)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	s := newStack(t)
	resp, err := http.Get(s.srv.URL + "/chats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContactsAndBlocking(t *testing.T) {
	s := newStack(t)
	alice, bob, carol := s.ids["alice"], s.ids["bob"], s.ids["carol"]

	var found struct {
		Users []models.User `json:"users"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/chats/users?search=AL", nil, &found))
	require.Len(t, found.Users, 1)
	assert.Equal(t, alice, found.Users[0].ID)
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/chats/users", nil, &found))
	assert.Len(t, found.Users, 2, "everyone but the caller")

	require.Equal(t, http.StatusCreated, s.call(t, "bob", http.MethodPost, "/contacts/add", map[string]any{"contactId": alice}, nil))
	assert.Equal(t, http.StatusConflict, s.call(t, "bob", http.MethodPost, "/contacts/add", map[string]any{"contactId": alice}, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, "bob", http.MethodPost, "/contacts/add", map[string]any{"contactId": 999}, nil))

	var suggested struct {
		Users []models.User `json:"users"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/contacts/suggestions", nil, &suggested))
	require.Len(t, suggested.Users, 1)
	assert.Equal(t, carol, suggested.Users[0].ID)

	var toggled struct {
		Contact models.Contact `json:"contact"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodPatch, fmt.Sprintf("/contacts/block/%d", alice), nil, &toggled))
	assert.True(t, toggled.Contact.IsBlocked)
	assert.Equal(t, "alice", toggled.Contact.Username)

	var listed struct {
		Contacts   []models.Contact `json:"contacts"`
		Pagination models.Page      `json:"pagination"`
	}
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/contacts", nil, &listed))
	assert.Empty(t, listed.Contacts)
	assert.Zero(t, listed.Pagination.Total)
	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodGet, "/contacts/blocked", nil, &listed))
	require.Len(t, listed.Contacts, 1)

	// bob blocked alice: her messages reach him neither live nor as send-time deliveries
	var opened struct {
		Chat models.ChatSummary `json:"chat"`
	}
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/direct/%d", bob), nil, &opened))
	bobConn := s.online(t, "bob")
	emit(t, bobConn, "joinChat", map[string]int{"chatId": opened.Chat.ID})
	settle(t, bobConn)

	var posted struct {
		Message models.Message `json:"message"`
	}
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/%d/messages", opened.Chat.ID), map[string]string{"content": "hello?"}, &posted))
	assert.Equal(t, models.StatusSent, posted.Message.Status)
	assert.Empty(t, posted.Message.DeliveredTo)

	require.Equal(t, http.StatusOK, s.call(t, "bob", http.MethodPatch, fmt.Sprintf("/contacts/block/%d", alice), nil, &toggled))
	assert.False(t, toggled.Contact.IsBlocked)
	require.Equal(t, http.StatusCreated, s.call(t, "alice", http.MethodPost, fmt.Sprintf("/chats/%d/messages", opened.Chat.ID), map[string]string{"content": "now?"}, &posted))
	assert.Equal(t, models.StatusDelivered, posted.Message.Status)
	expect(t, bobConn, ws.EventNewMessage)
}
