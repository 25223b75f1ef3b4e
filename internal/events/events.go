package events

import "time"

// Event types
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// UserEventsStream is the Redis stream carrying user lifecycle events.
const UserEventsStream = "user.events"

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type UserCreatedEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UserUpdatedEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserDeletedEvent struct {
	UserID string `json:"userId"`
}
