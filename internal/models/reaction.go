package models

import "time"

// Reaction is one user's emoji on a message. A user holds at most one per message.
type Reaction struct {
	MessageID int       `db:"message_id" json:"messageId"`
	UserID    int       `db:"user_id" json:"userId"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ReactionGroup aggregates the users behind one emoji.
type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Users []int  `json:"users"`
}

// GroupReactions folds reactions into groups ordered by first appearance.
// Emojis without users never appear.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	groups := make([]ReactionGroup, 0)
	index := map[string]int{}
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Users = append(groups[i].Users, r.UserID)
		groups[i].Count++
	}
	return groups
}
