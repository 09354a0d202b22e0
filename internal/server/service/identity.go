package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"cumulus/internal/server/config"
	"cumulus/internal/server/database"
	"cumulus/internal/server/mail"
	"cumulus/internal/server/storage"
)

const totpIssuer = "cumulus"

// dummyPasswordHash is compared against when no account matches, so absent
// accounts cost the same as a wrong password.
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("cumulus-timing-pad"), bcrypt.DefaultCost)

// IdentityService owns the account lifecycle: signup with email
// verification, authentication, password resets, email changes and account
// deletion. Operations that could reveal whether an address has an account
// always succeed at the API level; the outcome goes out as mail.
type IdentityService struct {
	db     *database.DB
	mailer mail.Mailer
	store  storage.Store
	cfg    *config.Config
}

func NewIdentityService(db *database.DB, mailer mail.Mailer, store storage.Store, cfg *config.Config) *IdentityService {
	return &IdentityService{db: db, mailer: mailer, store: store, cfg: cfg}
}

// BeginSignup records a pending signup and mails a verification link. If
// the address already has an account the claim is not created and the
// address owner is notified by mail instead; either way the caller sees
// success.
func (s *IdentityService) BeginSignup(ctx context.Context, email, name string, birthdate *time.Time, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := database.NewUserRepo(s.db.Pool)
	if _, err := users.GetByEmail(ctx, email); err == nil {
		if err := s.mailer.SendEmailTaken(ctx, email); err != nil {
			slog.Warn("failed to send email-taken notice", "error", err)
		}
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	token, tokenHash, err := generateToken()
	if err != nil {
		return err
	}

	passwordHash := string(hash)
	claims := database.NewUnverifiedEmailRepo(s.db.Pool)
	err = claims.ReplaceUnclaimed(ctx, &database.UnverifiedEmail{
		TokenHash:    tokenHash,
		Email:        email,
		Name:         &name,
		Birthdate:    birthdate,
		PasswordHash: &passwordHash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.mailer.SendVerification(ctx, email, mail.VerifyURL(s.cfg.BaseURL, token))
}

// CompleteSignup consumes a verification token and creates the account.
// The token is single use; a claim whose address got taken in the meantime
// fails with ErrEmailTaken.
func (s *IdentityService) CompleteSignup(ctx context.Context, token string) (string, error) {
	tokenHash := hashToken(token)
	userID := newID()

	err := s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		claims := database.NewUnverifiedEmailRepo(tx)
		claim, err := claims.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if claim.UserID != nil || claim.PasswordHash == nil {
			return ErrInvalidToken
		}
		if time.Since(claim.CreatedAt) > s.cfg.TokenMaxAge {
			return ErrInvalidToken
		}

		if err := claims.Delete(ctx, tokenHash); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		users := database.NewUserRepo(tx)
		if _, err := users.GetByEmail(ctx, claim.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		name := ""
		if claim.Name != nil {
			name = *claim.Name
		}
		return users.Create(ctx, &database.User{
			ID:           userID,
			Email:        claim.Email,
			Name:         name,
			Birthdate:    claim.Birthdate,
			PasswordHash: *claim.PasswordHash,
			CreatedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// Authenticate checks an email/password pair plus the TOTP code when the
// account has a second factor enrolled. Every failure mode returns the same
// ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, email, password, totpCode string) (*database.User, error) {
	user, err := database.NewUserRepo(s.db.Pool).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if user.TOTPSecret != nil {
		ok, err := totp.ValidateCustom(totpCode, *user.TOTPSecret, time.Now().UTC(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			return nil, ErrInvalidCredentials
		}
	}
	return user, nil
}

// RequestPasswordReset issues a reset token for the account behind the
// address. An unknown address gets a notice mail instead; the caller sees
// success in both cases.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := database.NewUserRepo(s.db.Pool).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			if err := s.mailer.SendPasswordResetFailed(ctx, email); err != nil {
				slog.Warn("failed to send reset-failed notice", "error", err)
			}
			return nil
		}
		return err
	}

	token, tokenHash, err := generateToken()
	if err != nil {
		return err
	}

	err = database.NewPasswordResetRepo(s.db.Pool).Replace(ctx, &database.PasswordReset{
		TokenHash: tokenHash,
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(ctx, user.Email, mail.ResetURL(s.cfg.BaseURL, token))
}

// CompletePasswordReset consumes a reset token, replaces the password and
// revokes every session of the user.
func (s *IdentityService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	tokenHash := hashToken(token)

	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		resets := database.NewPasswordResetRepo(tx)
		reset, err := resets.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if time.Since(reset.CreatedAt) > s.cfg.TokenMaxAge {
			return ErrInvalidToken
		}

		if err := resets.Delete(ctx, tokenHash); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		if err := database.NewUserRepo(tx).UpdatePasswordHash(ctx, reset.UserID, string(hash)); err != nil {
			return err
		}
		return database.NewSessionRepo(tx).DeleteForUser(ctx, reset.UserID)
	})
}

// RequestEmailChange issues a verification token binding the new address to
// the user. A taken address gets a notice mail instead; the caller sees
// success in both cases.
func (s *IdentityService) RequestEmailChange(ctx context.Context, userID, newEmail string) error {
	users := database.NewUserRepo(s.db.Pool)
	if _, err := users.GetByEmail(ctx, newEmail); err == nil {
		if err := s.mailer.SendEmailTaken(ctx, newEmail); err != nil {
			slog.Warn("failed to send email-taken notice", "error", err)
		}
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	token, tokenHash, err := generateToken()
	if err != nil {
		return err
	}

	err = database.NewUnverifiedEmailRepo(s.db.Pool).ReplaceForUser(ctx, &database.UnverifiedEmail{
		TokenHash: tokenHash,
		Email:     newEmail,
		UserID:    &userID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.mailer.SendVerification(ctx, newEmail, mail.VerifyURL(s.cfg.BaseURL, token))
}

// CompleteEmailChange consumes a verification token and switches the
// account to the new address.
func (s *IdentityService) CompleteEmailChange(ctx context.Context, token string) error {
	tokenHash := hashToken(token)

	return s.db.WithSerializable(ctx, func(tx pgx.Tx) error {
		claims := database.NewUnverifiedEmailRepo(tx)
		claim, err := claims.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if claim.UserID == nil {
			return ErrInvalidToken
		}
		if time.Since(claim.CreatedAt) > s.cfg.TokenMaxAge {
			return ErrInvalidToken
		}

		if err := claims.Delete(ctx, tokenHash); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		users := database.NewUserRepo(tx)
		if _, err := users.GetByEmail(ctx, claim.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
		return users.UpdateEmail(ctx, *claim.UserID, claim.Email)
	})
}

// ChangePassword replaces the password after verifying the current one, and
// revokes every other session of the user. currentToken identifies the
// session that stays alive.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, currentToken string) error {
	user, err := database.NewUserRepo(s.db.Pool).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := database.NewUserRepo(s.db.Pool).UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	return database.NewSessionRepo(s.db.Pool).DeleteForUserExcept(ctx, userID, hashToken(currentToken))
}

// EnrollTOTP generates a fresh TOTP secret for the user without storing it.
// The caller provisions an authenticator from the returned key and then
// activates with a valid code.
func (s *IdentityService) EnrollTOTP(ctx context.Context, userID string) (*otp.Key, error) {
	user, err := database.NewUserRepo(s.db.Pool).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}
	return key, nil
}

// ActivateTOTP stores the secret once the user proves possession with a
// valid code.
func (s *IdentityService) ActivateTOTP(ctx context.Context, userID, secret, code string) error {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	return database.NewUserRepo(s.db.Pool).UpdateTOTPSecret(ctx, userID, &secret)
}

// RemoveTOTP clears the second factor after verifying the password.
func (s *IdentityService) RemoveTOTP(ctx context.Context, userID, password string) error {
	user, err := database.NewUserRepo(s.db.Pool).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return database.NewUserRepo(s.db.Pool).UpdateTOTPSecret(ctx, userID, nil)
}

// GetUser returns the account profile.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*database.User, error) {
	return database.NewUserRepo(s.db.Pool).GetByID(ctx, userID)
}

// DeleteAccount removes the user after verifying the password. Rows cascade
// at the schema level; stored content parts are purged best-effort
// afterwards, since an orphaned part wastes space but breaks nothing.
func (s *IdentityService) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := database.NewUserRepo(s.db.Pool).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}

	fileParts, err := database.NewNodeRepo(s.db.Pool).AllFileIDs(ctx, userID)
	if err != nil {
		return err
	}

	if err := database.NewUserRepo(s.db.Pool).Delete(ctx, userID); err != nil {
		return err
	}

	for fileID, parts := range fileParts {
		if err := s.store.DeleteParts(ctx, fileID, parts); err != nil {
			slog.Warn("failed to delete content parts", "file_id", fileID, "error", err)
		}
	}
	return nil
}

// SweepTokens drops pending signups, email changes and reset tokens past
// their validity window.
func (s *IdentityService) SweepTokens(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.TokenMaxAge)
	if err := database.NewUnverifiedEmailRepo(s.db.Pool).DeleteOlderThan(ctx, cutoff); err != nil {
		return err
	}
	return database.NewPasswordResetRepo(s.db.Pool).DeleteOlderThan(ctx, cutoff)
}
