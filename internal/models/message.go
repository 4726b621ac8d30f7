package models

import (
	"slices"
	"time"
)

// MessageStatus is the delivery state of a message. It only moves forward:
// sent -> delivered -> seen.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is one of the known states.
func (s MessageStatus) Valid() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusSeen
}

// Advance returns the later of s and next, so a status never regresses.
func (s MessageStatus) Advance(next MessageStatus) MessageStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Attachment references a stored file.
type Attachment struct {
	URL       string `db:"url" json:"url"`
	LocalPath string `db:"local_path" json:"-"`
}

// Message is a chat message together with its receipts and reactions.
type Message struct {
	ID        int           `db:"id" json:"id"`
	ChatID    int           `db:"chat_id" json:"chatId"`
	SenderID  int           `db:"sender_id" json:"senderId"`
	Content   string        `db:"content" json:"content"`
	Status    MessageStatus `db:"status" json:"status"`
	ReplyToID *int          `db:"reply_to_id" json:"replyToId,omitempty"`
	IsDeleted bool          `db:"is_deleted" json:"isDeleted"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`

	Sender      *User           `db:"-" json:"sender,omitempty"`
	Attachments []Attachment    `db:"-" json:"attachments"`
	DeliveredTo []int           `db:"-" json:"deliveredTo"`
	SeenBy      []int           `db:"-" json:"seenBy"`
	Reactions   []ReactionGroup `db:"-" json:"reactions"`
}

// MarkDelivered adds userIDs to DeliveredTo. Status moves to delivered when at
// least one id was new, unless it is already seen. It reports whether anything changed.
func (m *Message) MarkDelivered(userIDs ...int) bool {
	var added bool
	m.DeliveredTo, added = addToSet(m.DeliveredTo, userIDs...)
	if added {
		m.Status = m.Status.Advance(StatusDelivered)
	}
	return added
}

// MarkSeen adds userIDs to both SeenBy and DeliveredTo and moves status to seen.
func (m *Message) MarkSeen(userIDs ...int) bool {
	if len(userIDs) == 0 {
		return false
	}
	var seenAdded, deliveredAdded bool
	m.SeenBy, seenAdded = addToSet(m.SeenBy, userIDs...)
	m.DeliveredTo, deliveredAdded = addToSet(m.DeliveredTo, userIDs...)
	m.Status = m.Status.Advance(StatusSeen)
	return seenAdded || deliveredAdded
}

// MessageRef is the minimal projection used by receipt batching.
type MessageRef struct {
	ID       int `db:"id" json:"id"`
	ChatID   int `db:"chat_id" json:"chatId"`
	SenderID int `db:"sender_id" json:"senderId"`
}

// RefIDs returns the ids of refs in order.
func RefIDs(refs []MessageRef) []int {
	ids := make([]int, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

func addToSet(set []int, ids ...int) ([]int, bool) {
	var added bool
	for _, id := range ids {
		if !slices.Contains(set, id) {
			set = append(set, id)
			added = true
		}
	}
	slices.Sort(set)
	return set, added
}
