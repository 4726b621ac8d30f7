package models

import "time"

// ContactCategory groups a saved contact.
type ContactCategory string

const (
	CategoryFriend ContactCategory = "friend"
	CategoryFamily ContactCategory = "family"
	CategoryWork   ContactCategory = "work"
	CategoryOther  ContactCategory = "other"
)

// Valid reports whether c is one of the known categories.
func (c ContactCategory) Valid() bool {
	switch c {
	case CategoryFriend, CategoryFamily, CategoryWork, CategoryOther:
		return true
	}
	return false
}

// Contact is an entry of a user's address book, joined with the contact's public profile.
type Contact struct {
	OwnerID   int             `db:"owner_id" json:"ownerId"`
	ContactID int             `db:"contact_id" json:"contactId"`
	Username  string          `db:"username" json:"username"`
	Avatar    string          `db:"avatar" json:"avatar,omitempty"`
	Category  ContactCategory `db:"category" json:"category"`
	IsBlocked bool            `db:"is_blocked" json:"isBlocked"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// Page describes one slice of a paginated listing.
type Page struct {
	Page         int  `json:"page"`
	ItemsPerPage int  `json:"itemsPerPage"`
	Total        int  `json:"total"`
	TotalPages   int  `json:"totalPages"`
	HasMore      bool `json:"hasMore"`
}

// NewPage computes the page metadata for total items.
func NewPage(page, perPage, total int) Page {
	pages := (total + perPage - 1) / perPage
	return Page{Page: page, ItemsPerPage: perPage, Total: total, TotalPages: pages, HasMore: page < pages}
}
