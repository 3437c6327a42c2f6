package passwords

// Package passwords hashes admin passwords with bcrypt.

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when configuration leaves the cost unset.
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for inputs bcrypt would truncate.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// ErrMismatch is returned by Compare when the password does not match.
var ErrMismatch = errors.New("password mismatch")

// Hasher hashes and verifies passwords. Plaintext must never be logged.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher clamps cost into bcrypt's supported range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	cost = max(cost, bcrypt.MinCost)
	cost = min(cost, bcrypt.MaxCost)
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Compare returns nil when password matches hash and ErrMismatch otherwise.
// Malformed hashes are reported as-is.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// CompareDummy burns roughly one Compare worth of CPU so unknown accounts
// take as long to reject as wrong passwords.
func (h *Hasher) CompareDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("catalog-admin-dummy"), h.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
