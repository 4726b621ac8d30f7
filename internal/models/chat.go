package models

import (
	"slices"
	"time"
)

// Chat is either a one-to-one conversation or a group.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	IsGroupChat   bool      `db:"is_group_chat" json:"isGroupChat"`
	AdminID       int       `db:"admin_id" json:"adminId"`
	LastMessageID *int      `db:"last_message_id" json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`

	// Participants is ordered by join time and holds no duplicates.
	Participants []int `db:"-" json:"participants"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	return slices.Contains(c.Participants, userID)
}

// OtherParticipants returns every participant except userID.
func (c Chat) OtherParticipants(userID int) []int {
	out := make([]int, 0, len(c.Participants))
	for _, id := range c.Participants {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// ChatSummary is the list view of a chat for one user.
type ChatSummary struct {
	Chat
	Members     []User   `json:"members"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}
