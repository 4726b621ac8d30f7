package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

const (
	defaultContactPage = 10
	maxContactPage     = 50
	maxSuggestions     = 50
)

// ContactHandler manages the caller's address book and block list.
type ContactHandler struct {
	contacts repositories.ContactRepository
	users    repositories.UserRepository
	audit    *telemetry.AuditEmitter
}

func NewContactHandler(contacts repositories.ContactRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *ContactHandler {
	return &ContactHandler{contacts: contacts, users: users, audit: audit}
}

// ListContacts handles GET /contacts?page=&limit= and returns unblocked contacts, newest first.
func (h *ContactHandler) ListContacts(c *gin.Context) {
	page, ok := queryInt(c, "page", 1, 1<<20)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultContactPage, maxContactPage)
	if !ok {
		return
	}

	contacts, total, err := h.contacts.ListContacts(c.Request.Context(), c.GetInt("userID"), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "pagination": models.NewPage(page, limit, total)})
}

// Suggestions lists users the caller has not saved yet.
func (h *ContactHandler) Suggestions(c *gin.Context) {
	users, err := h.contacts.Suggestions(c.Request.Context(), c.GetInt("userID"), maxSuggestions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load suggestions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// AddContact saves another user in the caller's address book.
func (h *ContactHandler) AddContact(c *gin.Context) {
	var req struct {
		ContactID int                    `json:"contactId" binding:"required"`
		Category  models.ContactCategory `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ContactID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contactId is required"})
		return
	}
	if req.Category == "" {
		req.Category = models.CategoryFriend
	}
	if !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}
	userID := c.GetInt("userID")
	if req.ContactID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot add yourself"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.users.GetUser(ctx, req.ContactID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	contact, err := h.contacts.AddContact(ctx, userID, req.ContactID, req.Category)
	if err != nil {
		if errors.Is(err, repositories.ErrContactExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "already in contacts"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add contact"})
		return
	}
	audit(c, h.audit, "contact.add", fmt.Sprintf("user:%d", req.ContactID), "contact added")
	c.JSON(http.StatusCreated, gin.H{"contact": contact})
}

// ToggleBlock flips the blocked flag of a saved contact.
func (h *ContactHandler) ToggleBlock(c *gin.Context) {
	contactID, ok := intParam(c, "contact_id")
	if !ok {
		return
	}

	contact, err := h.contacts.ToggleBlock(c.Request.Context(), c.GetInt("userID"), contactID)
	if err != nil {
		if errors.Is(err, repositories.ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found in your list"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update contact"})
		return
	}

	action := "contact.unblock"
	if contact.IsBlocked {
		action = "contact.block"
	}
	audit(c, h.audit, action, fmt.Sprintf("user:%d", contactID), action)
	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// Blocked lists the contacts the caller has blocked.
func (h *ContactHandler) Blocked(c *gin.Context) {
	contacts, err := h.contacts.ListBlocked(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load blocked contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// queryInt reads an optional positive integer query parameter capped at ceiling.
func queryInt(c *gin.Context, name string, def, ceiling int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return min(n, ceiling), true
}
