package cqrs

import "strings"

// CreateUserCommand registers a new account. Username and Email are stored
// trimmed; Password is hashed exactly as submitted.
type CreateUserCommand struct {
	Username string `label:"username" validate:"required"`
	Email    string `label:"email" validate:"required"`
	Password string `label:"password" validate:"required"`
}

// Normalize trims the identity fields in place.
func (c *CreateUserCommand) Normalize() {
	c.Username = strings.TrimSpace(c.Username)
	c.Email = strings.TrimSpace(c.Email)
}

// Validate returns the labels of required fields that are missing or blank.
func (c CreateUserCommand) Validate() []string {
	c.Normalize()
	c.Password = strings.TrimSpace(c.Password)
	return missingFields(c)
}

// UpdateUserCommand renames an existing account. Only the username is mutable.
type UpdateUserCommand struct {
	UserID   string `label:"id" validate:"required"`
	Username string `label:"username" validate:"required"`
}

func (c *UpdateUserCommand) Normalize() {
	c.UserID = strings.TrimSpace(c.UserID)
	c.Username = strings.TrimSpace(c.Username)
}

func (c UpdateUserCommand) Validate() []string {
	c.Normalize()
	return missingFields(c)
}

type DeleteUserCommand struct {
	UserID string `label:"id" validate:"required"`
}

func (c *DeleteUserCommand) Normalize() {
	c.UserID = strings.TrimSpace(c.UserID)
}

func (c DeleteUserCommand) Validate() []string {
	c.Normalize()
	return missingFields(c)
}
