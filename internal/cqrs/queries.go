package cqrs

import "strings"

// GetUserQuery fetches a single user by ID.
type GetUserQuery struct {
	UserID string `label:"id" validate:"required"`
}

func (q *GetUserQuery) Normalize() {
	q.UserID = strings.TrimSpace(q.UserID)
}

func (q GetUserQuery) Validate() []string {
	q.Normalize()
	return missingFields(q)
}

// ListUsersQuery fetches every user in store order. It carries no filters.
type ListUsersQuery struct{}
