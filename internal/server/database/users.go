package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UserRepo provides CRUD operations for user accounts.
type UserRepo struct {
	q Querier
}

// NewUserRepo creates a user repository over a pool or transaction.
func NewUserRepo(q Querier) *UserRepo {
	return &UserRepo{q: q}
}

const userColumns = "id, email, name, birthdate, password_hash, totp_secret, created_at"

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Birthdate, &u.PasswordHash, &u.TOTPSecret, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, email, name, birthdate, password_hash, totp_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, u.Birthdate, u.PasswordHash, u.TOTPSecret, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email)
	return scanUser(row)
}

// UpdatePasswordHash replaces the user's password hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.q.Exec(ctx, "UPDATE users SET password_hash = $2 WHERE id = $1", id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmail replaces the user's email address.
func (r *UserRepo) UpdateEmail(ctx context.Context, id, email string) error {
	tag, err := r.q.Exec(ctx, "UPDATE users SET email = $2 WHERE id = $1", id, email)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTOTPSecret sets or clears the user's TOTP secret.
func (r *UserRepo) UpdateTOTPSecret(ctx context.Context, id string, secret *string) error {
	tag, err := r.q.Exec(ctx, "UPDATE users SET totp_secret = $2 WHERE id = $1", id, secret)
	if err != nil {
		return fmt.Errorf("failed to update totp secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user row. Sessions, tokens, files and folders cascade at
// the schema level.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
