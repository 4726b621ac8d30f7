package models

import "time"

// StatusKind is the content type of a status story.
type StatusKind string

const (
	StatusKindText  StatusKind = "text"
	StatusKindImage StatusKind = "image"
	StatusKindVideo StatusKind = "video"
)

// Story is an ephemeral status visible to the poster's chat partners until it expires.
type Story struct {
	ID              int        `db:"id" json:"id"`
	PostedBy        int        `db:"posted_by" json:"postedBy"`
	Kind            StatusKind `db:"kind" json:"type"`
	Caption         string     `db:"caption" json:"caption,omitempty"`
	Text            string     `db:"text" json:"text,omitempty"`
	BackgroundColor string     `db:"background_color" json:"backgroundColor,omitempty"`
	MediaURL        string     `db:"media_url" json:"mediaUrl,omitempty"`
	MediaLocalPath  string     `db:"media_local_path" json:"-"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`

	VisibleTo []int `db:"-" json:"visibleTo,omitempty"`
	ViewedBy  []int `db:"-" json:"viewedBy"`
}

// Expired reports whether the story is past its expiry at now.
func (s Story) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StoryFeedEntry groups the active stories of one poster.
type StoryFeedEntry struct {
	User        User      `json:"user"`
	Items       []Story   `json:"items"`
	LastUpdated time.Time `json:"lastUpdated"`
}
