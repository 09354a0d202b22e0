package service

import (
	"bytes"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	plaintext, hash, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken failed: %v", err)
	}

	// 32 random bytes base64url-encode to 43 characters
	if len(plaintext) != 43 {
		t.Errorf("plaintext length = %d, want 43", len(plaintext))
	}
	if len(hash) != 32 {
		t.Errorf("hash length = %d, want 32", len(hash))
	}
	if !bytes.Equal(hash, hashToken(plaintext)) {
		t.Error("returned hash does not match hashToken(plaintext)")
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		plaintext, _, err := generateToken()
		if err != nil {
			t.Fatalf("generateToken failed: %v", err)
		}
		if seen[plaintext] {
			t.Fatal("duplicate token generated")
		}
		seen[plaintext] = true
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	a := hashToken("some-token")
	b := hashToken("some-token")
	c := hashToken("other-token")

	if !bytes.Equal(a, b) {
		t.Error("same input produced different hashes")
	}
	if bytes.Equal(a, c) {
		t.Error("different inputs produced the same hash")
	}
}

func TestTokensEqual(t *testing.T) {
	a := hashToken("x")
	b := hashToken("x")
	c := hashToken("y")

	if !tokensEqual(a, b) {
		t.Error("equal hashes reported unequal")
	}
	if tokensEqual(a, c) {
		t.Error("unequal hashes reported equal")
	}
	if tokensEqual(a, a[:16]) {
		t.Error("hashes of different length reported equal")
	}
}

func TestNewID(t *testing.T) {
	a := newID()
	b := newID()
	if a == "" || a == b {
		t.Errorf("newID returned %q then %q", a, b)
	}
}
