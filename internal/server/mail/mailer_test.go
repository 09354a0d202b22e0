package mail

import (
	"context"
	"testing"
)

func TestVerifyURL(t *testing.T) {
	got := VerifyURL("https://cloud.example.com", "tok123")
	want := "https://cloud.example.com/verify?token=tok123"
	if got != want {
		t.Errorf("VerifyURL = %q, want %q", got, want)
	}
}

func TestResetURL(t *testing.T) {
	got := ResetURL("https://cloud.example.com", "tok123")
	want := "https://cloud.example.com/reset?token=tok123"
	if got != want {
		t.Errorf("ResetURL = %q, want %q", got, want)
	}
}

func TestLogMailerNeverFails(t *testing.T) {
	m := NewLogMailer()
	ctx := context.Background()

	if err := m.SendVerification(ctx, "a@b.c", "http://x/verify?token=t"); err != nil {
		t.Errorf("SendVerification: %v", err)
	}
	if err := m.SendEmailTaken(ctx, "a@b.c"); err != nil {
		t.Errorf("SendEmailTaken: %v", err)
	}
	if err := m.SendPasswordReset(ctx, "a@b.c", "http://x/reset?token=t"); err != nil {
		t.Errorf("SendPasswordReset: %v", err)
	}
	if err := m.SendPasswordResetFailed(ctx, "a@b.c"); err != nil {
		t.Errorf("SendPasswordResetFailed: %v", err)
	}
}
