package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"peer-server/internal/models"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrAlreadyMember = errors.New("user already in chat")
	ErrNotMember     = errors.New("user not in chat")
)

// ChatRepository abstracts chat and membership persistence. AddMember and
// RemoveMember are single atomic statements so concurrent membership changes
// for the same chat cannot lose updates.
type ChatRepository interface {
	CreateChat(ctx context.Context, chatID, name, ownerID string) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	AddMember(ctx context.Context, chatID, userID string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	ListChatIDs(ctx context.Context) ([]string, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat creates a chat and enrolls the owner as its first member in one
// transaction, so the owner-is-a-member invariant holds from the start.
func (r *ChatRepo) CreateChat(ctx context.Context, chatID, name, ownerID string) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (id, name, owner_id) VALUES ($1, $2, $3) RETURNING id, name, owner_id, created_at`,
		chatID, name, ownerID).
		Scan(&chat.ID, &chat.Name, &chat.OwnerID, &chat.CreatedAt); err != nil {
		return models.Chat{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, ownerID); err != nil {
		return models.Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Members = []string{ownerID}
	return chat, nil
}

// GetChat fetches a chat with its current member list.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, name, owner_id, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}

	members := []string{}
	if err := r.db.SelectContext(ctx, &members,
		`SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY joined_at ASC`, chatID); err != nil {
		return models.Chat{}, err
	}
	chat.Members = members
	return chat, nil
}

// IsMember checks membership against the most recent committed state.
func (r *ChatRepo) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// AddMember enrolls the user. ON CONFLICT DO NOTHING makes the set-add atomic;
// zero rows affected means the user was already a member.
func (r *ChatRepo) AddMember(ctx context.Context, chatID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAlreadyMember
	}
	return nil
}

// RemoveMember removes the user. Zero rows affected means the user was not a
// member, so a repeated removal fails cleanly.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotMember
	}
	return nil
}

// ListChatIDs returns all chat ids.
func (r *ChatRepo) ListChatIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM chats ORDER BY created_at ASC`)
	return ids, err
}
