package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

// Realtime is what the REST layer needs from the websocket server.
type Realtime interface {
	NotifyChatParticipants(ctx context.Context, chat models.Chat, actorID int, event ws.Event, payload any) int
	NotifyUser(ctx context.Context, userID int, event ws.Event, payload any) bool
	DeliveryEligible(chatID int, userID int) bool
	EvictFromChat(userID int, chatID int)
	OnlineStatus(userIDs []int) map[int]bool
	MarkSeen(ctx context.Context, chatID int, viewerID int, trigger delivery.Trigger) ([]int, error)
}

var _ Realtime = (*ws.Server)(nil)

// ChatHandler manages one-to-one chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	realtime    Realtime
	blobs       storage.Remover
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, realtime Realtime, blobs storage.Remover, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		realtime:    realtime,
		blobs:       blobs,
		audit:       audit,
	}
}

// ListChats returns the chats of the authenticated user with members and last message.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	summaries, err := summarize(c.Request.Context(), h.userRepo, h.messageRepo, chats...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat details"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

const maxUserSearch = 50

// SearchUsers handles GET /chats/users?search= and lists users the caller can start a chat with.
func (h *ChatHandler) SearchUsers(c *gin.Context) {
	users, err := h.userRepo.SearchUsers(c.Request.Context(), c.GetInt("userID"), c.Query("search"), maxUserSearch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// OpenDirectChat returns the one-to-one chat with receiver_id, creating it on first use.
func (h *ChatHandler) OpenDirectChat(c *gin.Context) {
	receiverID, ok := intParam(c, "receiver_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if userID == receiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.userRepo.GetUser(ctx, receiverID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	status := http.StatusOK
	chat, err := h.chatRepo.FindDirectChat(ctx, userID, receiverID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		chat, err = h.chatRepo.CreateChat(ctx, "", false, userID, []int{userID, receiverID})
		status = http.StatusCreated
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open chat"})
		return
	}

	summaries, err := summarize(ctx, h.userRepo, h.messageRepo, chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat details"})
		return
	}

	if status == http.StatusCreated {
		h.realtime.NotifyUser(ctx, receiverID, ws.EventNewChat, summaries[0])
		audit(c, h.audit, "chat.create", fmt.Sprintf("chat:%d", chat.ID), "direct chat created")
	}
	c.JSON(status, gin.H{"chat": summaries[0]})
}

// DeleteChat removes a one-to-one chat with all messages and attachment files.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return
	}
	if chat.IsGroupChat {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use the group endpoint to delete a group"})
		return
	}

	if !deleteChatCascade(c, h.chatRepo, h.realtime, h.blobs, chat) {
		return
	}
	audit(c, h.audit, "chat.delete", fmt.Sprintf("chat:%d", chat.ID), "direct chat deleted")
	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID})
}

// deleteChatCascade deletes chat, its attachment files and room memberships, and tells
// everyone but the caller. It writes the error response itself.
func deleteChatCascade(c *gin.Context, chatRepo repositories.ChatRepository, realtime Realtime, blobs storage.Remover, chat models.Chat) bool {
	ctx := c.Request.Context()
	attachments, err := chatRepo.DeleteChat(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return false
	}

	if blobs != nil {
		paths := make([]string, 0, len(attachments))
		for _, a := range attachments {
			if a.LocalPath != "" {
				paths = append(paths, a.LocalPath)
			}
		}
		if len(paths) > 0 {
			removed := blobs.Remove(paths...)
			log.Printf("chat %d deleted: removed %d of %d attachment files", chat.ID, removed, len(paths))
		}
	}

	for _, id := range chat.Participants {
		realtime.EvictFromChat(id, chat.ID)
	}
	realtime.NotifyChatParticipants(ctx, chat, c.GetInt("userID"), ws.EventLeaveChat, chat)
	return true
}

// loadChatForMember resolves :chat_id and checks that the caller participates.
// It writes the error response itself.
func loadChatForMember(c *gin.Context, chatRepo repositories.ChatRepository) (models.Chat, bool) {
	chatID, ok := intParam(c, "chat_id")
	if !ok {
		return models.Chat{}, false
	}

	chat, err := chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, false
	}
	if !chat.HasParticipant(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return models.Chat{}, false
	}
	return chat, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// summarize attaches member profiles and the last message to each chat.
func summarize(ctx context.Context, userRepo repositories.UserRepository, messageRepo repositories.MessageRepository, chats ...models.Chat) ([]models.ChatSummary, error) {
	summaries := make([]models.ChatSummary, 0, len(chats))
	if len(chats) == 0 {
		return summaries, nil
	}

	seen := map[int]struct{}{}
	var userIDs, lastIDs []int
	for _, chat := range chats {
		for _, id := range chat.Participants {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				userIDs = append(userIDs, id)
			}
		}
		if chat.LastMessageID != nil {
			lastIDs = append(lastIDs, *chat.LastMessageID)
		}
	}

	users, err := userRepo.BulkUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	userByID := make(map[int]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	messageByID := map[int]models.Message{}
	if len(lastIDs) > 0 {
		msgs, err := messageRepo.GetMessages(ctx, lastIDs)
		if err != nil {
			return nil, fmt.Errorf("load last messages: %w", err)
		}
		for _, m := range msgs {
			messageByID[m.ID] = m
		}
	}

	for _, chat := range chats {
		s := models.ChatSummary{Chat: chat, Members: make([]models.User, 0, len(chat.Participants))}
		for _, id := range chat.Participants {
			u, ok := userByID[id]
			if !ok {
				u = models.User{ID: id}
			}
			s.Members = append(s.Members, u)
		}
		if chat.LastMessageID != nil {
			if m, ok := messageByID[*chat.LastMessageID]; ok {
				s.LastMessage = &m
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
