package repository

import "github.com/pkg/errors"

// Sentinels shared by every user store implementation. Any other error
// returned by a store means the store itself could not serve the request.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)
