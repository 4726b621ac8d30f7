package models

import "time"

// User is the public view of an account; credentials live elsewhere.
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Avatar    string    `db:"avatar" json:"avatar,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
