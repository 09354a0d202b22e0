package mail

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailer delivers the account lifecycle messages. Every message that could
// reveal whether an address has an account goes out as mail rather than as
// an API response, so the API stays uniform for both cases.
type Mailer interface {
	SendVerification(ctx context.Context, email, verifyURL string) error
	SendEmailTaken(ctx context.Context, email string) error
	SendPasswordReset(ctx context.Context, email, resetURL string) error
	SendPasswordResetFailed(ctx context.Context, email string) error
}

// LogMailer writes messages to the log instead of sending them. It is the
// default backend for development and tests.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) SendVerification(ctx context.Context, email, verifyURL string) error {
	slog.Info("mail: verify your email", "to", email, "url", verifyURL)
	return nil
}

func (m *LogMailer) SendEmailTaken(ctx context.Context, email string) error {
	slog.Info("mail: an account with this email already exists", "to", email)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	slog.Info("mail: reset your password", "to", email, "url", resetURL)
	return nil
}

func (m *LogMailer) SendPasswordResetFailed(ctx context.Context, email string) error {
	slog.Info("mail: no account exists for this email", "to", email)
	return nil
}

// VerifyURL builds the link embedded in verification mail.
func VerifyURL(baseURL, token string) string {
	return fmt.Sprintf("%s/verify?token=%s", baseURL, token)
}

// ResetURL builds the link embedded in password reset mail.
func ResetURL(baseURL, token string) string {
	return fmt.Sprintf("%s/reset?token=%s", baseURL, token)
}
