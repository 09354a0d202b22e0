package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SessionRepo stores sign-in sessions, keyed by token hash.
type SessionRepo struct {
	q Querier
}

func NewSessionRepo(q Querier) *SessionRepo {
	return &SessionRepo{q: q}
}

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s *Session) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, accessed_at)
		VALUES ($1, $2, $3, $4)
	`, s.TokenHash, s.UserID, s.CreatedAt, s.AccessedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByTokenHash looks up a session by the hash of its token.
func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash []byte) (*Session, error) {
	s := &Session{}
	err := r.q.QueryRow(ctx, `
		SELECT token_hash, user_id, created_at, accessed_at FROM sessions WHERE token_hash = $1
	`, tokenHash).Scan(&s.TokenHash, &s.UserID, &s.CreatedAt, &s.AccessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Touch moves accessed_at forward. Best-effort: a lost update under race
// only shortens the sliding window.
func (r *SessionRepo) Touch(ctx context.Context, tokenHash []byte, now time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE sessions SET accessed_at = $2 WHERE token_hash = $1 AND accessed_at < $2
	`, tokenHash, now)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes a session row. Deleting an absent session is not an error
// (revocation is idempotent).
func (r *SessionRepo) Delete(ctx context.Context, tokenHash []byte) error {
	_, err := r.q.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser removes every session belonging to the user.
func (r *SessionRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, "DELETE FROM sessions WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteForUserExcept removes every session of the user except the one with
// the given token hash (used when a password change keeps the current
// session alive).
func (r *SessionRepo) DeleteForUserExcept(ctx context.Context, userID string, keepHash []byte) error {
	_, err := r.q.Exec(ctx,
		"DELETE FROM sessions WHERE user_id = $1 AND token_hash <> $2", userID, keepHash)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions idle since idleBefore or created before
// createdBefore, returning how many were swept.
func (r *SessionRepo) DeleteExpired(ctx context.Context, idleBefore, createdBefore time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM sessions WHERE accessed_at < $1 OR created_at < $2
	`, idleBefore, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
