package models

import "time"

// Chat is a group chat. Members is loaded from the chat_members table; the
// owner is always present in it.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   string    `db:"owner_id" json:"owner"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Members   []string  `db:"-" json:"members"`
}
