package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/utils"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// UserRepository persists users in PostgreSQL, the source of truth.
// Email uniqueness is enforced by the users_email_key constraint, so a
// duplicate insert fails even when two requests race past the service check.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	// IDs are always issued by Insert; anything else cannot exist.
	if !utils.ValidateUserID(id) {
		return nil, ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// FindByEmail matches the email exactly, including case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.findOne(ctx, query, email)
}

func (r *UserRepository) Insert(ctx context.Context, username, email, credential string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:           utils.GenerateID(utils.UserIDPrefix),
		Username:     username,
		Email:        email,
		PasswordHash: credential,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, errors.Wrap(err, "failed to create user")
	}
	return user, nil
}

// Save persists the mutable part of a user. Only the username changes;
// email and password_hash are never written after insert.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	query := `UPDATE users SET username = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, user.ID, user.Username, now)
	if err != nil {
		return errors.Wrap(err, "failed to update user")
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, user *models.User) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	return expectOneRow(result)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
