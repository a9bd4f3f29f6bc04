package otp

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	code, secret, err := Issue(now)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if len(code) != CodeLength {
		t.Errorf("code length = %d, want %d", len(code), CodeLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Errorf("code %q contains non-digit %q", code, r)
		}
	}

	if !secret.ExpiresAt.Equal(now.Add(TTL)) {
		t.Errorf("expiry = %v, want %v", secret.ExpiresAt, now.Add(TTL))
	}
	if secret.Used || secret.Attempts != 0 {
		t.Errorf("fresh secret should be unused with zero attempts: %+v", secret)
	}

	// The plaintext must verify against the stored hash and nothing else.
	if err := bcrypt.CompareHashAndPassword([]byte(secret.Hash), []byte(code)); err != nil {
		t.Errorf("issued code does not match its own hash: %v", err)
	}
}

func TestVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code, secret, err := Issue(now)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	tests := []struct {
		name      string
		secret    Secret
		submitted string
		at        time.Time
		wantErr   error
	}{
		{name: "match", secret: secret, submitted: code, at: now.Add(time.Minute)},
		{name: "mismatch", secret: secret, submitted: wrong, at: now.Add(time.Minute), wantErr: ErrMismatch},
		{name: "expired", secret: secret, submitted: code, at: now.Add(TTL + time.Second), wantErr: ErrExpired},
		{
			name:      "already used wins over match",
			secret:    Secret{Hash: secret.Hash, ExpiresAt: secret.ExpiresAt, Used: true},
			submitted: code,
			at:        now.Add(time.Minute),
			wantErr:   ErrAlreadyUsed,
		},
		{
			name:      "already used wins over expiry",
			secret:    Secret{Hash: secret.Hash, ExpiresAt: secret.ExpiresAt, Used: true},
			submitted: code,
			at:        now.Add(TTL + time.Hour),
			wantErr:   ErrAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.submitted, tt.at)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Verify() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_BoundaryExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code, secret, err := Issue(now)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// Exactly at expiry the code is still accepted; one nanosecond later it
	// is not.
	if err := Verify(secret, code, secret.ExpiresAt); err != nil {
		t.Errorf("Verify at expiry = %v, want nil", err)
	}
	if err := Verify(secret, code, secret.ExpiresAt.Add(time.Nanosecond)); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify after expiry = %v, want ErrExpired", err)
	}
}
