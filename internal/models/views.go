package models

import "time"

// UserView is the read-optimised projection of a user.
// It never exposes PasswordHash and is what the Redis read model stores.
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}
