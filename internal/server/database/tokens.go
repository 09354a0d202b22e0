package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UnverifiedEmailRepo stores pending email claims (signup verification and
// email changes).
type UnverifiedEmailRepo struct {
	q Querier
}

func NewUnverifiedEmailRepo(q Querier) *UnverifiedEmailRepo {
	return &UnverifiedEmailRepo{q: q}
}

// ReplaceUnclaimed inserts an unclaimed email claim, dropping any previous
// unclaimed claim for the same address. A repeated signup attempt therefore
// overwrites rather than duplicates.
func (r *UnverifiedEmailRepo) ReplaceUnclaimed(ctx context.Context, rec *UnverifiedEmail) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM unverified_emails WHERE user_id IS NULL AND LOWER(email) = LOWER($1)
	`, rec.Email)
	if err != nil {
		return fmt.Errorf("failed to drop previous email claim: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO unverified_emails (token_hash, email, user_id, name, birthdate, password_hash, created_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6)
	`, rec.TokenHash, rec.Email, rec.Name, rec.Birthdate, rec.PasswordHash, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create email claim: %w", err)
	}
	return nil
}

// ReplaceForUser inserts an email-change claim bound to an existing user,
// dropping the user's previous claim if any.
func (r *UnverifiedEmailRepo) ReplaceForUser(ctx context.Context, rec *UnverifiedEmail) error {
	_, err := r.q.Exec(ctx, "DELETE FROM unverified_emails WHERE user_id = $1", rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to drop previous email claim: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO unverified_emails (token_hash, email, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.TokenHash, rec.Email, rec.UserID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create email claim: %w", err)
	}
	return nil
}

// GetByTokenHash looks up a claim by the hash of its verification token.
func (r *UnverifiedEmailRepo) GetByTokenHash(ctx context.Context, tokenHash []byte) (*UnverifiedEmail, error) {
	rec := &UnverifiedEmail{}
	err := r.q.QueryRow(ctx, `
		SELECT token_hash, email, user_id, name, birthdate, password_hash, created_at
		FROM unverified_emails WHERE token_hash = $1
	`, tokenHash).Scan(&rec.TokenHash, &rec.Email, &rec.UserID, &rec.Name, &rec.Birthdate, &rec.PasswordHash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email claim: %w", err)
	}
	return rec, nil
}

// Delete consumes a claim. Returns ErrNotFound if it was already consumed,
// which callers surface as an invalid token (single use).
func (r *UnverifiedEmailRepo) Delete(ctx context.Context, tokenHash []byte) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM unverified_emails WHERE token_hash = $1", tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete email claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan drops claims issued before the cutoff.
func (r *UnverifiedEmailRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.Exec(ctx, "DELETE FROM unverified_emails WHERE created_at < $1", cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep email claims: %w", err)
	}
	return nil
}

// PasswordResetRepo stores single-use password reset tokens.
type PasswordResetRepo struct {
	q Querier
}

func NewPasswordResetRepo(q Querier) *PasswordResetRepo {
	return &PasswordResetRepo{q: q}
}

// Replace inserts a reset token for the user, invalidating any outstanding
// one (at most one live token per user).
func (r *PasswordResetRepo) Replace(ctx context.Context, rec *PasswordReset) error {
	_, err := r.q.Exec(ctx, "DELETE FROM password_resets WHERE user_id = $1", rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to drop previous reset token: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO password_resets (token_hash, user_id, created_at)
		VALUES ($1, $2, $3)
	`, rec.TokenHash, rec.UserID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// GetByTokenHash looks up a reset request by the hash of its token.
func (r *PasswordResetRepo) GetByTokenHash(ctx context.Context, tokenHash []byte) (*PasswordReset, error) {
	rec := &PasswordReset{}
	err := r.q.QueryRow(ctx, `
		SELECT token_hash, user_id, created_at FROM password_resets WHERE token_hash = $1
	`, tokenHash).Scan(&rec.TokenHash, &rec.UserID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return rec, nil
}

// Delete consumes a reset token.
func (r *PasswordResetRepo) Delete(ctx context.Context, tokenHash []byte) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM password_resets WHERE token_hash = $1", tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan drops reset tokens issued before the cutoff.
func (r *PasswordResetRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.Exec(ctx, "DELETE FROM password_resets WHERE created_at < $1", cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep reset tokens: %w", err)
	}
	return nil
}
