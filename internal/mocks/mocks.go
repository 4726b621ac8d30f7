package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/ws"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ParticipantsOf(ctx context.Context, chatID int) ([]int, error) {
	args := m.Called(ctx, chatID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	args := m.Called(ctx, userID, otherID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, name string, isGroup bool, adminID int, participants []int) (models.Chat, error) {
	args := m.Called(ctx, name, isGroup, adminID, participants)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) RenameChat(ctx context.Context, chatID int, name string) (models.Chat, error) {
	args := m.Called(ctx, chatID, name)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) AddParticipant(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveParticipant(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetLastMessage(ctx context.Context, chatID int, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) ([]models.Attachment, error) {
	args := m.Called(ctx, chatID)
	var list []models.Attachment
	if val := args.Get(0); val != nil {
		list = val.([]models.Attachment)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) PartnersOf(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessages(ctx context.Context, ids []int) ([]models.Message, error) {
	args := m.Called(ctx, ids)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) FindUnseenBy(ctx context.Context, chatID int, userID int) ([]models.MessageRef, error) {
	args := m.Called(ctx, chatID, userID)
	var refs []models.MessageRef
	if val := args.Get(0); val != nil {
		refs = val.([]models.MessageRef)
	}
	return refs, args.Error(1)
}

func (m *MessageRepositoryMock) FindUndeliveredTo(ctx context.Context, userID int) ([]models.MessageRef, error) {
	args := m.Called(ctx, userID)
	var refs []models.MessageRef
	if val := args.Get(0); val != nil {
		refs = val.([]models.MessageRef)
	}
	return refs, args.Error(1)
}

// MarkDelivered records userIDs as a single []int argument so expectations stay readable.
func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageIDs []int, userIDs ...int) error {
	args := m.Called(ctx, messageIDs, userIDs)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkSeen(ctx context.Context, messageIDs []int, userIDs ...int) error {
	args := m.Called(ctx, messageIDs, userIDs)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) ([]models.ReactionGroup, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var groups []models.ReactionGroup
	if val := args.Get(0); val != nil {
		groups = val.([]models.ReactionGroup)
	}
	return groups, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int, senderID int) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, avatar string) (models.User, error) {
	args := m.Called(ctx, username, avatar)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, excludeID int, query string, limit int) ([]models.User, error) {
	args := m.Called(ctx, excludeID, query, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ContactRepositoryMock struct {
	mock.Mock
}

func (m *ContactRepositoryMock) ListContacts(ctx context.Context, ownerID int, limit, offset int) ([]models.Contact, int, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	var list []models.Contact
	if val := args.Get(0); val != nil {
		list = val.([]models.Contact)
	}
	return list, args.Int(1), args.Error(2)
}

func (m *ContactRepositoryMock) ListBlocked(ctx context.Context, ownerID int) ([]models.Contact, error) {
	args := m.Called(ctx, ownerID)
	var list []models.Contact
	if val := args.Get(0); val != nil {
		list = val.([]models.Contact)
	}
	return list, args.Error(1)
}

func (m *ContactRepositoryMock) Suggestions(ctx context.Context, ownerID int, limit int) ([]models.User, error) {
	args := m.Called(ctx, ownerID, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *ContactRepositoryMock) AddContact(ctx context.Context, ownerID, contactID int, category models.ContactCategory) (models.Contact, error) {
	args := m.Called(ctx, ownerID, contactID, category)
	var contact models.Contact
	if val := args.Get(0); val != nil {
		contact = val.(models.Contact)
	}
	return contact, args.Error(1)
}

func (m *ContactRepositoryMock) ToggleBlock(ctx context.Context, ownerID, contactID int) (models.Contact, error) {
	args := m.Called(ctx, ownerID, contactID)
	var contact models.Contact
	if val := args.Get(0); val != nil {
		contact = val.(models.Contact)
	}
	return contact, args.Error(1)
}

func (m *ContactRepositoryMock) BlockedBy(ctx context.Context, contactID int, ownerIDs []int) (map[int]bool, error) {
	args := m.Called(ctx, contactID, ownerIDs)
	var out map[int]bool
	if val := args.Get(0); val != nil {
		out = val.(map[int]bool)
	}
	return out, args.Error(1)
}

type StoryRepositoryMock struct {
	mock.Mock
}

func (m *StoryRepositoryMock) CreateStory(ctx context.Context, story models.Story) (models.Story, error) {
	args := m.Called(ctx, story)
	var s models.Story
	if val := args.Get(0); val != nil {
		s = val.(models.Story)
	}
	return s, args.Error(1)
}

func (m *StoryRepositoryMock) GetStory(ctx context.Context, storyID int) (models.Story, error) {
	args := m.Called(ctx, storyID)
	var s models.Story
	if val := args.Get(0); val != nil {
		s = val.(models.Story)
	}
	return s, args.Error(1)
}

func (m *StoryRepositoryMock) ListVisibleTo(ctx context.Context, viewerID int, now time.Time) ([]models.Story, error) {
	args := m.Called(ctx, viewerID, now)
	var list []models.Story
	if val := args.Get(0); val != nil {
		list = val.([]models.Story)
	}
	return list, args.Error(1)
}

func (m *StoryRepositoryMock) ListByPoster(ctx context.Context, posterID int, now time.Time) ([]models.Story, error) {
	args := m.Called(ctx, posterID, now)
	var list []models.Story
	if val := args.Get(0); val != nil {
		list = val.([]models.Story)
	}
	return list, args.Error(1)
}

func (m *StoryRepositoryMock) MarkViewed(ctx context.Context, storyID int, viewerID int) error {
	args := m.Called(ctx, storyID, viewerID)
	return args.Error(0)
}

func (m *StoryRepositoryMock) DeleteStory(ctx context.Context, storyID int) error {
	args := m.Called(ctx, storyID)
	return args.Error(0)
}

func (m *StoryRepositoryMock) DeleteExpired(ctx context.Context, now time.Time) ([]models.Story, error) {
	args := m.Called(ctx, now)
	var list []models.Story
	if val := args.Get(0); val != nil {
		list = val.([]models.Story)
	}
	return list, args.Error(1)
}

// RealtimeMock stands in for the websocket server behind the REST handlers.
type RealtimeMock struct {
	mock.Mock
}

func (m *RealtimeMock) NotifyChatParticipants(ctx context.Context, chat models.Chat, actorID int, event ws.Event, payload any) int {
	args := m.Called(ctx, chat, actorID, event, payload)
	return args.Int(0)
}

func (m *RealtimeMock) NotifyUser(ctx context.Context, userID int, event ws.Event, payload any) bool {
	args := m.Called(ctx, userID, event, payload)
	return args.Bool(0)
}

func (m *RealtimeMock) DeliveryEligible(chatID int, userID int) bool {
	args := m.Called(chatID, userID)
	return args.Bool(0)
}

func (m *RealtimeMock) EvictFromChat(userID int, chatID int) {
	m.Called(userID, chatID)
}

func (m *RealtimeMock) OnlineStatus(userIDs []int) map[int]bool {
	args := m.Called(userIDs)
	var out map[int]bool
	if val := args.Get(0); val != nil {
		out = val.(map[int]bool)
	}
	return out
}

func (m *RealtimeMock) MarkSeen(ctx context.Context, chatID int, viewerID int, trigger delivery.Trigger) ([]int, error) {
	args := m.Called(ctx, chatID, viewerID, trigger)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

// BlobRemoverMock records removed paths.
type BlobRemoverMock struct {
	mock.Mock
}

func (m *BlobRemoverMock) Remove(paths ...string) int {
	args := m.Called(paths)
	return args.Int(0)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ContactRepository = (*ContactRepositoryMock)(nil)
var _ repositories.StoryRepository = (*StoryRepositoryMock)(nil)
