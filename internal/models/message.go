package models

import "time"

// Message is one entry in a chat's append-only log. ID is assigned by the
// store in append order; Timestamp is the caller-supplied epoch value and is
// never used for ordering.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	AuthorID  string    `db:"author_id" json:"author"`
	Content   string    `db:"content" json:"content"`
	Timestamp int64     `db:"sent_at" json:"timestamp"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LiveMessage is the payload of a livemsg feed frame.
type LiveMessage struct {
	AuthorID  string `json:"author_id"`
	Handle    string `json:"handle"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// FeedEvent is a frame pushed over feed connections.
type FeedEvent struct {
	Cmd string       `json:"cmd"`
	Val *LiveMessage `json:"val,omitempty"`
}
