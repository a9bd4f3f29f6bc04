// Package otp issues and verifies the one-time numeric codes that gate
// physical parcel handover. Codes are 4 digits, single-use, expire two hours
// after issue, and only their bcrypt hashes ever leave this package for
// storage. The package knows nothing about delivery states; callers own the
// attempt counter and the dispute threshold policy.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the number of digits in a handover code.
	CodeLength = 4

	// TTL is how long a code stays verifiable after issue.
	TTL = 2 * time.Hour

	// MaxAttempts is the cumulative mismatch budget per code. The caller must
	// move the delivery to its dispute path when a code's attempt counter
	// reaches this value.
	MaxAttempts = 3
)

var (
	// ErrMismatch is returned when the submitted code does not match the
	// stored hash. Retryable up to MaxAttempts.
	ErrMismatch = errors.New("incorrect code")

	// ErrExpired is returned when the code is past its expiry. Not retryable.
	ErrExpired = errors.New("code expired")

	// ErrAlreadyUsed is returned when a previously verified code is replayed.
	ErrAlreadyUsed = errors.New("code already used")
)

// Secret is the persistable state of one issued code. The plaintext is
// returned exactly once by Issue and is never stored.
type Secret struct {
	Hash      string    `json:"-" db:"hash"`
	ExpiresAt time.Time `json:"-" db:"expires_at"`
	Attempts  int       `json:"-" db:"attempts"`
	Used      bool      `json:"-" db:"used"`
}

// Issue generates a cryptographically random 4-digit code and returns the
// plaintext alongside the Secret to persist.
func Issue(now time.Time) (string, Secret, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", Secret{}, fmt.Errorf("otp.Issue: %w", err)
	}
	code := fmt.Sprintf("%04d", n.Int64())

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", Secret{}, fmt.Errorf("otp.Issue: %w", err)
	}

	return code, Secret{
		Hash:      string(hash),
		ExpiresAt: now.Add(TTL),
	}, nil
}

// Verify checks a submitted code against the secret. The order of checks is
// fixed: used, expired, then hash comparison, so a replayed code reports
// ErrAlreadyUsed even after expiry. On ErrMismatch the caller must persist an
// attempt-counter increment; on success it must persist the used flag.
func Verify(s Secret, submitted string, now time.Time) error {
	if s.Used {
		return ErrAlreadyUsed
	}
	if now.After(s.ExpiresAt) {
		return ErrExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.Hash), []byte(submitted)); err != nil {
		return ErrMismatch
	}
	return nil
}
