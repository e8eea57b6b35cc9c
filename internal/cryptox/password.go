// Package cryptox wraps the one-way password hashing used for stored
// credentials. Hashes are bcrypt digests with an embedded per-hash salt.
package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor for new hashes.
const DefaultCost = 10

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash
// (more than 72 bytes).
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, digest string) bool
}

// BcryptHasher is the bcrypt-backed PasswordHasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or DefaultCost when cost is
// outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the salted digest of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare reports whether plaintext matches digest. The comparison is
// constant-time; a malformed digest never matches.
func (h *BcryptHasher) Compare(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
