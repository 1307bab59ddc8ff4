package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"peer-server/internal/models"
)

// MessageRepository abstracts the append-only message log. The serial id
// assigned on insert is the delivery and history order.
type MessageRepository interface {
	AppendMessage(ctx context.Context, chatID, authorID, content string, timestamp int64) (models.Message, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage durably appends a message to the chat's log.
func (r *MessageRepo) AppendMessage(ctx context.Context, chatID, authorID, content string, timestamp int64) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, author_id, content, sent_at) VALUES ($1, $2, $3, $4)
         RETURNING id, chat_id, author_id, content, sent_at, created_at`,
		chatID, authorID, content, timestamp).
		Scan(&msg.ID, &msg.ChatID, &msg.AuthorID, &msg.Content, &msg.Timestamp, &msg.CreatedAt)
	return msg, err
}

// ListMessages returns the newest limit messages in stored (append) order.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, author_id, content, sent_at, created_at FROM messages WHERE chat_id=$1 ORDER BY id DESC LIMIT $2`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
