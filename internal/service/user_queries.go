package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/eaglebank/usermanager/internal/cqrs"
	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/repository"
)

var getRequired = []string{"id"}

// List returns every user in store order. An empty store yields an empty,
// non-nil slice.
func (s *UserService) List(ctx context.Context, _ cqrs.ListUsersQuery) ([]models.UserView, error) {
	users, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.storeUnavailable(ctx, "list users", err)
	}
	views := make([]models.UserView, 0, len(users))
	for i := range users {
		views = append(views, *users[i].View())
	}
	return views, nil
}

// FindByID returns the user view for q.UserID, from the read model when one
// is configured.
func (s *UserService) FindByID(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	if missing := q.Validate(); missing != nil {
		return nil, invalidInput(getRequired, missing)
	}
	q.Normalize()

	if view, ok := s.cache.Get(ctx, viewKey(q.UserID)); ok {
		return view, nil
	}

	user, err := s.store.FindByID(ctx, q.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, s.storeUnavailable(ctx, "find user by id", err)
	}

	view := user.View()
	s.warm(ctx, view)
	return view, nil
}

// warm caches view and then re-reads the store. A delete or rename that
// committed after the first read may already have cleared the key, so the
// entry is dropped unless the store still agrees with it.
func (s *UserService) warm(ctx context.Context, view *models.UserView) {
	if _, ok := s.cache.(nopCache); ok {
		return
	}
	key := viewKey(view.ID)
	s.cache.Set(ctx, key, view)

	current, err := s.store.FindByID(ctx, view.ID)
	if err != nil || current.Username != view.Username || !current.UpdatedAt.Equal(view.UpdatedAt) {
		s.cache.Delete(ctx, key)
	}
}
