package repository

import (
	"context"
	"sync"
	"time"

	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/utils"
)

// MemoryUserRepository is an in-process user store for local runs and tests.
// The email index is checked and updated under the same write lock as the
// insert, which gives it the same uniqueness guarantee as the PostgreSQL
// constraint.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
	order   []string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

// FindAll returns users in insertion order.
func (r *MemoryUserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.byID[id])
	}
	return users, nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := r.byID[id]
	return &user, nil
}

func (r *MemoryUserRepository) Insert(ctx context.Context, username, email, credential string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return nil, ErrDuplicateEmail
	}
	now := time.Now().UTC()
	user := models.User{
		ID:           utils.GenerateID(utils.UserIDPrefix),
		Username:     username,
		Email:        email,
		PasswordHash: credential,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	r.order = append(r.order, user.ID)
	return &user, nil
}

// Save writes the username of an existing user; other fields keep their
// stored values.
func (r *MemoryUserRepository) Save(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	stored.Username = user.Username
	stored.UpdatedAt = time.Now().UTC()
	r.byID[user.ID] = stored
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.byID, stored.ID)
	delete(r.byEmail, stored.Email)
	for i, id := range r.order {
		if id == stored.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
