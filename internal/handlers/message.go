package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const maxAttachments = 6

// URLResolver maps a public attachment URL to its local file, if any.
type URLResolver interface {
	ResolveURL(url string) string
}

// BlockLookup reports which of ownerIDs have blocked contactID.
type BlockLookup interface {
	BlockedBy(ctx context.Context, contactID int, ownerIDs []int) (map[int]bool, error)
}

// MessageHandler serves message history, posting, reactions, deletion and read receipts.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	receipts    *delivery.Service
	realtime    Realtime
	blocks      BlockLookup
	files       URLResolver
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
// blocks may be nil, in which case nobody is filtered out of live fan-out.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, receipts *delivery.Service, realtime Realtime, blocks BlockLookup, files URLResolver, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		receipts:    receipts,
		realtime:    realtime,
		blocks:      blocks,
		files:       files,
		audit:       audit,
	}
}

// ListMessages returns the chat history in order.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListChatMessages(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message, marks it delivered to participants who have the chat open
// and pushes it to every other online participant.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return
	}

	var req struct {
		Content     string   `json:"content"`
		ReplyToID   *int     `json:"replyToId"`
		Attachments []string `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content or attachments required"})
		return
	}
	if len(req.Attachments) > maxAttachments {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d attachments", maxAttachments)})
		return
	}

	ctx := c.Request.Context()
	if req.ReplyToID != nil {
		parent, err := h.messageRepo.GetMessage(ctx, *req.ReplyToID)
		if err != nil || parent.ChatID != chat.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reply target not in this chat"})
			return
		}
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, url := range req.Attachments {
		if strings.TrimSpace(url) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty attachment url"})
			return
		}
		a := models.Attachment{URL: url}
		if h.files != nil {
			a.LocalPath = h.files.ResolveURL(url)
		}
		attachments = append(attachments, a)
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.CreateMessage(ctx, repositories.NewMessage{
		ChatID:      chat.ID,
		SenderID:    userID,
		Content:     content,
		ReplyToID:   req.ReplyToID,
		Attachments: attachments,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}
	if err := h.chatRepo.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		log.Printf("set last message chat_id=%d message_id=%d: %v", chat.ID, msg.ID, err)
	}
	// Membership may have changed since the chat was loaded.
	if members, err := h.chatRepo.ParticipantsOf(ctx, chat.ID); err != nil {
		log.Printf("reload participants chat_id=%d: %v", chat.ID, err)
	} else {
		chat.Participants = members
	}
	// Participants who blocked the sender get no live push and no send-time delivery.
	if h.blocks != nil {
		blocked, err := h.blocks.BlockedBy(ctx, userID, chat.Participants)
		if err != nil {
			log.Printf("block lookup chat_id=%d sender_id=%d: %v", chat.ID, userID, err)
		} else if len(blocked) > 0 {
			chat.Participants = slices.DeleteFunc(slices.Clone(chat.Participants), func(id int) bool { return blocked[id] })
		}
	}

	recipients := delivery.Candidates(chat, userID, func(id int) bool {
		return h.realtime.DeliveryEligible(chat.ID, id)
	})
	msg, err = h.receipts.DeliverOnCreate(ctx, msg, recipients)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record delivery"})
		return
	}

	h.realtime.NotifyChatParticipants(ctx, chat, userID, ws.EventNewMessage, msg)
	if len(recipients) > 0 {
		h.realtime.NotifyUser(ctx, userID, ws.EventMessageDelivered, models.DeliveryReceipt{
			ChatID:      chat.ID,
			MessageIDs:  []int{msg.ID},
			DeliveredTo: recipients,
			Status:      models.StatusDelivered,
		})
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// React toggles the caller's reaction on a message.
func (h *MessageHandler) React(c *gin.Context) {
	chat, msg, ok := h.loadMessage(c)
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Emoji) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}
	if msg.IsDeleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message was deleted"})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetInt("userID")
	groups, err := h.messageRepo.ToggleReaction(ctx, msg.ID, userID, strings.TrimSpace(req.Emoji))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	update := models.ReactionUpdate{ChatID: chat.ID, MessageID: msg.ID, Reactions: groups}
	h.realtime.NotifyChatParticipants(ctx, chat, userID, ws.EventReaction, update)
	c.JSON(http.StatusOK, update)
}

// DeleteMessage soft deletes a message. Only its sender may do this.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	chat, msg, ok := h.loadMessage(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := c.GetInt("userID")
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		return
	}

	deleted, err := h.messageRepo.SoftDelete(ctx, msg.ID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to delete message"})
		return
	}

	h.realtime.NotifyChatParticipants(ctx, chat, userID, ws.EventMessageDeleted, deleted)
	audit(c, h.audit, "message.delete", fmt.Sprintf("message:%d", msg.ID), "message deleted")
	c.JSON(http.StatusOK, gin.H{"message": deleted})
}

// MarkSeen marks every message of the chat from other senders as seen by the caller.
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return
	}

	ids, err := h.realtime.MarkSeen(c.Request.Context(), chat.ID, c.GetInt("userID"), delivery.TriggerRead)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages seen"})
		return
	}
	if ids == nil {
		ids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID, "messageIds": ids})
}

func (h *MessageHandler) loadMessage(c *gin.Context) (models.Chat, models.Message, bool) {
	chat, ok := loadChatForMember(c, h.chatRepo)
	if !ok {
		return models.Chat{}, models.Message{}, false
	}
	messageID, ok := intParam(c, "message_id")
	if !ok {
		return models.Chat{}, models.Message{}, false
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil || msg.ChatID != chat.ID {
		status := http.StatusNotFound
		if err != nil && !errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Chat{}, models.Message{}, false
	}
	return chat, msg, true
}
