package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const minGroupMembers = 3

// GroupHandler manages group chat endpoints.
type GroupHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	realtime    Realtime
	blobs       storage.Remover
	audit       *telemetry.AuditEmitter
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, realtime Realtime, blobs storage.Remover, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		realtime:    realtime,
		blobs:       blobs,
		audit:       audit,
	}
}

// CreateGroup creates a group chat administered by the caller.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name         string `json:"name" binding:"required"`
		Participants []int  `json:"participants" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name is required"})
		return
	}

	userID := c.GetInt("userID")
	members := []int{userID}
	for _, id := range req.Participants {
		if id == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participants must not include the creator"})
			return
		}
		if id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
			return
		}
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < minGroupMembers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("a group needs at least %d members", minGroupMembers)})
		return
	}

	ctx := c.Request.Context()
	users, err := h.userRepo.BulkUsers(ctx, members[1:])
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	if len(users) != len(members)-1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant"})
		return
	}

	chat, err := h.chatRepo.CreateChat(ctx, name, true, userID, members)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	summaries, err := summarize(ctx, h.userRepo, h.messageRepo, chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group details"})
		return
	}

	h.realtime.NotifyChatParticipants(ctx, chat, userID, ws.EventNewChat, summaries[0])
	audit(c, h.audit, "group.create", fmt.Sprintf("chat:%d", chat.ID), "group created")
	c.JSON(http.StatusCreated, gin.H{"chat": summaries[0]})
}

// GetGroup returns one group the caller belongs to.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	chat, ok := h.loadGroup(c)
	if !ok {
		return
	}
	summaries, err := summarize(c.Request.Context(), h.userRepo, h.messageRepo, chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group details"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": summaries[0]})
}

// RenameGroup changes the group name. Admin only.
func (h *GroupHandler) RenameGroup(c *gin.Context) {
	chat, ok := h.loadGroupAsAdmin(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name is required"})
		return
	}

	ctx := c.Request.Context()
	updated, err := h.chatRepo.RenameChat(ctx, chat.ID, strings.TrimSpace(req.Name))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename group"})
		return
	}

	h.realtime.NotifyChatParticipants(ctx, updated, 0, ws.EventNewGroupName, updated)
	audit(c, h.audit, "group.rename", fmt.Sprintf("chat:%d", chat.ID), "group renamed")
	c.JSON(http.StatusOK, gin.H{"chat": updated})
}

// AddParticipant adds a user to the group. Admin only.
func (h *GroupHandler) AddParticipant(c *gin.Context) {
	chat, ok := h.loadGroupAsAdmin(c)
	if !ok {
		return
	}
	participantID, ok := intParam(c, "participant_id")
	if !ok {
		return
	}
	if chat.HasParticipant(participantID) {
		c.JSON(http.StatusConflict, gin.H{"error": "user is already in the group"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.userRepo.GetUser(ctx, participantID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	if err := h.chatRepo.AddParticipant(ctx, chat.ID, participantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add participant"})
		return
	}
	chat.Participants = append(chat.Participants, participantID)

	summaries, err := summarize(ctx, h.userRepo, h.messageRepo, chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group details"})
		return
	}

	h.realtime.NotifyUser(ctx, participantID, ws.EventNewChat, summaries[0])
	audit(c, h.audit, "group.add_participant", fmt.Sprintf("chat:%d", chat.ID), fmt.Sprintf("user %d added", participantID))
	c.JSON(http.StatusOK, gin.H{"chat": summaries[0]})
}

// RemoveParticipant removes a user from the group. Admin only; the admin cannot be removed.
func (h *GroupHandler) RemoveParticipant(c *gin.Context) {
	chat, ok := h.loadGroupAsAdmin(c)
	if !ok {
		return
	}
	participantID, ok := intParam(c, "participant_id")
	if !ok {
		return
	}
	if participantID == chat.AdminID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the admin cannot be removed"})
		return
	}
	if !chat.HasParticipant(participantID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not in the group"})
		return
	}

	ctx := c.Request.Context()
	if err := h.chatRepo.RemoveParticipant(ctx, chat.ID, participantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove participant"})
		return
	}
	chat.Participants = chat.OtherParticipants(participantID)

	h.realtime.EvictFromChat(participantID, chat.ID)
	h.realtime.NotifyUser(ctx, participantID, ws.EventLeaveChat, chat)
	audit(c, h.audit, "group.remove_participant", fmt.Sprintf("chat:%d", chat.ID), fmt.Sprintf("user %d removed", participantID))
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// LeaveGroup removes the caller from the group. The admin has to delete the group instead.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	chat, ok := h.loadGroup(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if userID == chat.AdminID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the admin cannot leave the group"})
		return
	}

	if err := h.chatRepo.RemoveParticipant(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave group"})
		return
	}

	h.realtime.EvictFromChat(userID, chat.ID)
	audit(c, h.audit, "group.leave", fmt.Sprintf("chat:%d", chat.ID), "left group")
	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID})
}

// DeleteGroup removes the group with all messages and attachment files. Admin only.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	chat, ok := h.loadGroupAsAdmin(c)
	if !ok {
		return
	}
	if !deleteChatCascade(c, h.chatRepo, h.realtime, h.blobs, chat) {
		return
	}
	audit(c, h.audit, "group.delete", fmt.Sprintf("chat:%d", chat.ID), "group deleted")
	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID})
}

func (h *GroupHandler) loadGroup(c *gin.Context) (models.Chat, bool) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return models.Chat{}, false
	}
	if !chat.IsGroupChat {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return models.Chat{}, false
	}
	return chat, true
}

func (h *GroupHandler) loadGroupAsAdmin(c *gin.Context) (models.Chat, bool) {
	chat, ok := h.loadGroup(c)
	if !ok {
		return models.Chat{}, false
	}
	if chat.AdminID != c.GetInt("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the admin can do this"})
		return models.Chat{}, false
	}
	return chat, true
}
