package service

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies the outcome of a failed UserService operation.
type Kind int

const (
	// KindInvalidInput: a required field is missing or blank. Never reaches the store.
	KindInvalidInput Kind = iota + 1
	// KindConflict: the email is already owned by another user.
	KindConflict
	// KindNotFound: no user has the referenced ID.
	KindNotFound
	// KindStoreUnavailable: the user store failed. Not retried.
	KindStoreUnavailable
	// KindInternal: a collaborator other than the store failed, e.g. the hasher.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Messages rendered to clients.
const (
	MsgUserNotFound     = "User not found."
	MsgEmailTaken       = "A user with this email already exists."
	MsgUserCreated      = "User successfully created!"
	MsgUserUpdated      = "User updated successfully."
	MsgUserDeleted      = "User deleted successfully."
	MsgStoreUnavailable = "The user store is currently unavailable."
	MsgInternal         = "An unexpected error occurred."
)

// Error is the typed failure returned by every UserService operation.
// Match on the kind with errors.Is(err, ErrNotFound) and friends, or read
// Kind directly via errors.As.
type Error struct {
	Kind    Kind
	Message string
	// Fields lists the missing fields of an InvalidInput error.
	Fields []string
	Err    error
}

var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrInternal         = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is one of the kind
// sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// MessageOf returns the client-facing message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgInternal
}

func invalidInput(required, missing []string) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Message: "Invalid data. Required: " + joinFields(required) + ".",
		Fields:  missing,
	}
}

func notFound() *Error {
	return &Error{Kind: KindNotFound, Message: MsgUserNotFound}
}

func conflict(cause error) *Error {
	return &Error{Kind: KindConflict, Message: MsgEmailTaken, Err: cause}
}

// joinFields renders a list the way the messages read: "id",
// "id and username", "username, email, and password".
func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
	}
}
