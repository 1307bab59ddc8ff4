package models

import "time"

// User is a registered account. The password hash is owned by the account
// handler and never serialized to clients.
type User struct {
	ID            string    `db:"id" json:"id"`
	Username      string    `db:"username" json:"username"`
	Discriminator string    `db:"discriminator" json:"discriminator"`
	DisplayName   *string   `db:"display_name" json:"display_name,omitempty"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Handle returns the unique username#discriminator combination.
func (u User) Handle() string {
	return u.Username + "#" + u.Discriminator
}
