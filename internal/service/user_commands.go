package service

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/eaglebank/usermanager/internal/cqrs"
	"github.com/eaglebank/usermanager/internal/events"
	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/repository"
)

var (
	createRequired = []string{"username", "email", "password"}
	updateRequired = []string{"id", "username"}
	deleteRequired = []string{"id"}
)

// Create registers a new user. The email must not belong to any existing
// user; the password is hashed only once that check has passed. The returned
// view never carries the credential.
func (s *UserService) Create(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.UserView, error) {
	if missing := cmd.Validate(); missing != nil {
		return nil, invalidInput(createRequired, missing)
	}
	cmd.Normalize()

	_, err := s.store.FindByEmail(ctx, cmd.Email)
	switch {
	case err == nil:
		return nil, conflict(nil)
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, s.storeUnavailable(ctx, "find user by email", err)
	}

	credential, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		s.logger.ErrorContext(ctx, "password hashing failed", slog.Any("error", err))
		return nil, &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
	}

	// The store enforces uniqueness too; this catches a concurrent create
	// that slipped past the check above.
	user, err := s.store.Insert(ctx, cmd.Username, cmd.Email, credential)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, conflict(err)
	}
	if err != nil {
		return nil, s.storeUnavailable(ctx, "insert user", err)
	}

	view := user.View()
	s.publish(ctx, events.UserCreated, events.UserCreatedEvent{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
	s.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID))
	return view, nil
}

// Update renames a user. Email and credential are never touched here.
func (s *UserService) Update(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error) {
	if missing := cmd.Validate(); missing != nil {
		return nil, invalidInput(updateRequired, missing)
	}
	cmd.Normalize()

	user, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	user.Username = cmd.Username
	if err := s.store.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.cache.Delete(ctx, viewKey(cmd.UserID))
			return nil, notFound()
		}
		return nil, s.storeUnavailable(ctx, "save user", err)
	}

	// Evict instead of writing the new view so racing renames cannot leave
	// the older name behind.
	s.cache.Delete(ctx, viewKey(user.ID))
	view := user.View()
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID:   user.ID,
		Username: user.Username,
	})
	return view, nil
}

// Delete removes a user permanently. Deleting an ID twice yields NotFound
// the second time.
func (s *UserService) Delete(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	if missing := cmd.Validate(); missing != nil {
		return invalidInput(deleteRequired, missing)
	}
	cmd.Normalize()

	user, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.cache.Delete(ctx, viewKey(cmd.UserID))
			return notFound()
		}
		return s.storeUnavailable(ctx, "delete user", err)
	}

	s.cache.Delete(ctx, viewKey(user.ID))
	s.publish(ctx, events.UserDeleted, events.UserDeletedEvent{UserID: user.ID})
	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", user.ID))
	return nil
}

// load fetches the write model straight from the store, bypassing the read
// model cache.
func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, s.storeUnavailable(ctx, "find user by id", err)
	}
	return user, nil
}
