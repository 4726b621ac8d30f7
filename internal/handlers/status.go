package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/telemetry"
)

// ExpiredCleaner removes expired statuses on demand.
type ExpiredCleaner interface {
	RunOnce(ctx context.Context) (int, error)
}

// StatusHandler serves ephemeral status stories.
type StatusHandler struct {
	storyRepo repositories.StoryRepository
	chatRepo  repositories.ChatRepository
	userRepo  repositories.UserRepository
	files     URLResolver
	blobs     storage.Remover
	cleaner   ExpiredCleaner
	audit     *telemetry.AuditEmitter
	ttl       time.Duration
	now       func() time.Time
}

// NewStatusHandler builds a StatusHandler whose statuses live for ttl.
func NewStatusHandler(storyRepo repositories.StoryRepository, chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, files URLResolver, blobs storage.Remover, cleaner ExpiredCleaner, audit *telemetry.AuditEmitter, ttl time.Duration) *StatusHandler {
	return &StatusHandler{
		storyRepo: storyRepo,
		chatRepo:  chatRepo,
		userRepo:  userRepo,
		files:     files,
		blobs:     blobs,
		cleaner:   cleaner,
		audit:     audit,
		ttl:       ttl,
		now:       time.Now,
	}
}

type createStatusRequest struct {
	Type            models.StatusKind `json:"type" binding:"required"`
	Text            string            `json:"text"`
	Caption         string            `json:"caption"`
	BackgroundColor string            `json:"backgroundColor"`
	MediaURL        string            `json:"mediaUrl"`
}

func (r createStatusRequest) validate() error {
	switch r.Type {
	case models.StatusKindText:
		if strings.TrimSpace(r.Text) == "" {
			return errors.New("text status needs text")
		}
	case models.StatusKindImage, models.StatusKindVideo:
		if strings.TrimSpace(r.MediaURL) == "" {
			return errors.New("media status needs media_url")
		}
	default:
		return fmt.Errorf("unknown status type %q", r.Type)
	}
	return nil
}

// CreateStatus posts a status visible to everyone the caller shares a chat with.
func (h *StatusHandler) CreateStatus(c *gin.Context) {
	var req createStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetInt("userID")
	audience, err := h.chatRepo.PartnersOf(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve audience"})
		return
	}

	now := h.now()
	story := models.Story{
		PostedBy:        userID,
		Kind:            req.Type,
		Caption:         req.Caption,
		Text:            req.Text,
		BackgroundColor: req.BackgroundColor,
		MediaURL:        req.MediaURL,
		CreatedAt:       now,
		ExpiresAt:       now.Add(h.ttl),
		VisibleTo:       audience,
	}
	if req.MediaURL != "" && h.files != nil {
		story.MediaLocalPath = h.files.ResolveURL(req.MediaURL)
	}

	created, err := h.storyRepo.CreateStory(ctx, story)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create status"})
		return
	}
	audit(c, h.audit, "status.create", fmt.Sprintf("status:%d", created.ID), "status posted")
	c.JSON(http.StatusCreated, gin.H{"status": created})
}

// Feed returns active statuses visible to the caller grouped per poster, most recent poster first.
func (h *StatusHandler) Feed(c *gin.Context) {
	ctx := c.Request.Context()
	stories, err := h.storyRepo.ListVisibleTo(ctx, c.GetInt("userID"), h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statuses"})
		return
	}

	byPoster := map[int]*models.StoryFeedEntry{}
	var posters []int
	for _, s := range stories {
		// the audience list is the poster's business
		s.VisibleTo = nil
		entry, ok := byPoster[s.PostedBy]
		if !ok {
			entry = &models.StoryFeedEntry{User: models.User{ID: s.PostedBy}}
			byPoster[s.PostedBy] = entry
			posters = append(posters, s.PostedBy)
		}
		entry.Items = append(entry.Items, s)
		if s.CreatedAt.After(entry.LastUpdated) {
			entry.LastUpdated = s.CreatedAt
		}
	}

	if len(posters) > 0 {
		users, err := h.userRepo.BulkUsers(ctx, posters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load posters"})
			return
		}
		for _, u := range users {
			if entry, ok := byPoster[u.ID]; ok {
				entry.User = u
			}
		}
	}

	feed := make([]models.StoryFeedEntry, 0, len(posters))
	for _, id := range posters {
		feed = append(feed, *byPoster[id])
	}
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].LastUpdated.After(feed[j].LastUpdated)
	})
	c.JSON(http.StatusOK, gin.H{"statuses": feed})
}

type ownStatus struct {
	models.Story
	ViewCount int `json:"viewCount"`
}

// Mine returns the caller's active statuses with their viewers.
func (h *StatusHandler) Mine(c *gin.Context) {
	stories, err := h.storyRepo.ListByPoster(c.Request.Context(), c.GetInt("userID"), h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statuses"})
		return
	}
	out := make([]ownStatus, 0, len(stories))
	for _, s := range stories {
		out = append(out, ownStatus{Story: s, ViewCount: len(s.ViewedBy)})
	}
	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

// View records that the caller saw a status. Repeated views count once.
func (h *StatusHandler) View(c *gin.Context) {
	story, ok := h.loadStatus(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if story.Expired(h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status has expired"})
		return
	}
	if story.PostedBy == userID {
		c.JSON(http.StatusOK, gin.H{"statusId": story.ID})
		return
	}
	if !slices.Contains(story.VisibleTo, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "status not visible"})
		return
	}

	if err := h.storyRepo.MarkViewed(c.Request.Context(), story.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record view"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statusId": story.ID})
}

// DeleteStatus removes one of the caller's statuses and its media file.
func (h *StatusHandler) DeleteStatus(c *gin.Context) {
	story, ok := h.loadStatus(c)
	if !ok {
		return
	}
	if story.PostedBy != c.GetInt("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the poster can delete a status"})
		return
	}

	if err := h.storyRepo.DeleteStory(c.Request.Context(), story.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete status"})
		return
	}
	if story.MediaLocalPath != "" && h.blobs != nil {
		h.blobs.Remove(story.MediaLocalPath)
	}
	audit(c, h.audit, "status.delete", fmt.Sprintf("status:%d", story.ID), "status deleted")
	c.JSON(http.StatusOK, gin.H{"statusId": story.ID})
}

// DeleteExpired runs the expiry cleanup right away.
func (h *StatusHandler) DeleteExpired(c *gin.Context) {
	n, err := h.cleaner.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete expired statuses"})
		return
	}
	audit(c, h.audit, "status.cleanup", "status", fmt.Sprintf("%d expired statuses deleted", n))
	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}

func (h *StatusHandler) loadStatus(c *gin.Context) (models.Story, bool) {
	id, ok := intParam(c, "status_id")
	if !ok {
		return models.Story{}, false
	}
	story, err := h.storyRepo.GetStory(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrStatusNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "status not found"})
		return models.Story{}, false
	}
	return story, true
}
