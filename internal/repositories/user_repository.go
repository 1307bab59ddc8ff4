package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"peer-server/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username taken")
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByHandle(ctx context.Context, username, discriminator string) (models.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ListMemberships(ctx context.Context, userID string) ([]string, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account. The unique index on (username,
// discriminator) makes handle uniqueness atomic; a conflicting insert maps to
// ErrUsernameTaken.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, discriminator, display_name, password_hash) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Discriminator, user.DisplayName, user.PasswordHash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, discriminator, display_name, password_hash, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByHandle fetches a user by its username#discriminator combination.
func (r *UserRepo) GetUserByHandle(ctx context.Context, username, discriminator string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, discriminator, display_name, password_hash, created_at FROM users WHERE username=$1 AND discriminator=$2`,
		username, discriminator)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUserIDs returns all user ids.
func (r *UserRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY created_at ASC`)
	return ids, err
}

// ListMemberships returns the chat ids the user belongs to.
func (r *UserRepo) ListMemberships(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM chat_members WHERE user_id=$1 ORDER BY joined_at ASC`, userID)
	return ids, err
}
