// Package service owns the user account lifecycle: it validates command and
// query value objects, enforces email uniqueness, hashes passwords and applies
// the create/update/delete transitions against a UserStore.
//
// UserService keeps no state between calls beyond references to its
// collaborators and is safe for concurrent use.
package service

import (
	"context"
	"log/slog"

	"github.com/eaglebank/usermanager/internal/events"
	"github.com/eaglebank/usermanager/internal/models"
)

// UserStore is the persistence contract. Implementations return
// repository.ErrUserNotFound for misses and repository.ErrDuplicateEmail when
// the storage layer rejects a second owner of an email. Any other error is
// treated as the store being unavailable.
type UserStore interface {
	FindAll(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Insert(ctx context.Context, username, email, credential string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, user *models.User) error
}

// PasswordHasher turns a plaintext password into a stored credential.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// ViewCache holds the read model of users keyed by ID. Implementations swallow
// their own failures; a miss falls through to the store.
type ViewCache interface {
	Get(ctx context.Context, key string) (*models.UserView, bool)
	Set(ctx context.Context, key string, view *models.UserView)
	Delete(ctx context.Context, key string)
}

// EventPublisher emits user lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

const userViewKeyPrefix = "user:view:"

type UserService struct {
	store     UserStore
	hasher    PasswordHasher
	cache     ViewCache
	publisher EventPublisher
	logger    *slog.Logger
}

type Option func(*UserService)

// WithViewCache serves FindByID from the read model. Reads fill it and every
// update or delete evicts the user's entry.
func WithViewCache(cache ViewCache) Option {
	return func(s *UserService) { s.cache = cache }
}

// WithPublisher emits user.created, user.updated and user.deleted events.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *UserService) { s.publisher = publisher }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *UserService) { s.logger = logger }
}

func NewUserService(store UserStore, hasher PasswordHasher, opts ...Option) *UserService {
	s := &UserService{
		store:     store,
		hasher:    hasher,
		cache:     nopCache{},
		publisher: nopPublisher{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func viewKey(id string) string {
	return userViewKeyPrefix + id
}

// storeUnavailable logs the store failure and wraps it for the caller.
func (s *UserService) storeUnavailable(ctx context.Context, op string, err error) *Error {
	s.logger.ErrorContext(ctx, "user store failed", slog.String("op", op), slog.Any("error", err))
	return &Error{Kind: KindStoreUnavailable, Message: MsgStoreUnavailable, Err: err}
}

// publish is best effort: the mutation already committed, so a lost event is
// logged rather than reported.
func (s *UserService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.UserEventsStream, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to publish user event", slog.String("type", eventType), slog.Any("error", err))
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*models.UserView, bool) { return nil, false }
func (nopCache) Set(context.Context, string, *models.UserView)        {}
func (nopCache) Delete(context.Context, string)                       {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }
