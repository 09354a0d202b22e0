package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cumulus/internal/server/config"
	"cumulus/internal/server/database"
)

// SessionService issues, validates and revokes sign-in sessions. Sessions
// slide: each validated use pushes the idle deadline forward, up to an
// absolute maximum age.
type SessionService struct {
	db  *database.DB
	cfg *config.Config
}

func NewSessionService(db *database.DB, cfg *config.Config) *SessionService {
	return &SessionService{db: db, cfg: cfg}
}

// Create issues a session for the user and returns the plaintext token.
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	token, hash, err := generateToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	sessions := database.NewSessionRepo(s.db.Pool)
	err = sessions.Create(ctx, &database.Session{
		TokenHash:  hash,
		UserID:     userID,
		CreatedAt:  now,
		AccessedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return token, nil
}

// Validate resolves a session token to its user id. Expired sessions are
// deleted on sight; live ones get their accessed_at pushed forward, which
// is best-effort and never fails the request.
func (s *SessionService) Validate(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	sessions := database.NewSessionRepo(s.db.Pool)

	sess, err := sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrInvalidSession
		}
		return "", err
	}

	now := time.Now().UTC()
	if now.Sub(sess.AccessedAt) > s.cfg.SessionIdleTimeout || now.Sub(sess.CreatedAt) > s.cfg.SessionMaxAge {
		if err := sessions.Delete(ctx, hash); err != nil {
			slog.Warn("failed to delete expired session", "error", err)
		}
		return "", ErrInvalidSession
	}

	if err := sessions.Touch(ctx, hash, now); err != nil {
		slog.Warn("failed to touch session", "error", err)
	}
	return sess.UserID, nil
}

// Revoke deletes one session. Revoking an already absent token succeeds.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return database.NewSessionRepo(s.db.Pool).Delete(ctx, hashToken(token))
}

// RevokeAll deletes every session of the user.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	return database.NewSessionRepo(s.db.Pool).DeleteForUser(ctx, userID)
}

// Sweep removes every session past its idle or absolute deadline.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	return database.NewSessionRepo(s.db.Pool).DeleteExpired(ctx,
		now.Add(-s.cfg.SessionIdleTimeout), now.Add(-s.cfg.SessionMaxAge))
}
