package models

// PresenceUpdate is broadcast when a user goes online or offline.
type PresenceUpdate struct {
	UserID   int    `json:"userId"`
	Username string `json:"username,omitempty"`
}

// DeliveryReceipt tells a sender which of their messages reached a recipient.
type DeliveryReceipt struct {
	ChatID      int           `json:"chatId"`
	MessageIDs  []int         `json:"messageIds"`
	DeliveredTo []int         `json:"deliveredTo"`
	Status      MessageStatus `json:"status"`
}

// SeenReceipt tells a sender which of their messages were viewed.
type SeenReceipt struct {
	ChatID     int           `json:"chatId"`
	MessageIDs []int         `json:"messageIds"`
	SeenBy     int           `json:"seenBy"`
	Status     MessageStatus `json:"status"`
}

// ReactionUpdate carries the full reaction state of a message after a change.
type ReactionUpdate struct {
	ChatID    int             `json:"chatId"`
	MessageID int             `json:"messageId"`
	Reactions []ReactionGroup `json:"reactions"`
}

// TypingNotice is relayed to the other sockets of a chat room.
type TypingNotice struct {
	ChatID   int    `json:"chatId"`
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}
