package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Every capability in the system (verification token, password reset token,
// session token, share key) is the same primitive: a high-entropy random
// string whose SHA-256 is the only thing ever persisted. The plaintext goes
// to the caller exactly once, at issuance. High entropy means no salt is
// needed, and an unsalted hash stays indexable for lookups.

const tokenBytes = 32

// generateToken returns a fresh capability token and its storage hash.
func generateToken() (plaintext string, hash []byte, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("crypto/rand failure: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(raw)
	return plaintext, hashToken(plaintext), nil
}

// hashToken produces the storage hash of a presented token.
func hashToken(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

// tokensEqual compares two token hashes in constant time.
func tokensEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// newID returns a fresh node/user id.
func newID() string {
	return uuid.NewString()
}
