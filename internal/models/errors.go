package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation is returned when the input to an operation violates a
	// domain constraint (weight out of range, missing photos, bad enum value).
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or
	// longitudes outside [-180, 180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrStateConflict is returned when an operation's guard no longer holds:
	// the delivery was already accepted, already cancelled, or is in the wrong
	// status for the attempted transition. Callers should refresh, not retry.
	ErrStateConflict = errors.New("delivery has moved on")

	// ErrConflict is returned when a unique resource already exists
	// (duplicate email, duplicate rating).
	ErrConflict = errors.New("resource already exists")

	// ErrForbidden is returned when the caller is not a party to the resource.
	ErrForbidden = errors.New("not allowed")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrKYCNotApproved is returned when a carrier attempts an action that
	// requires an approved KYC profile.
	ErrKYCNotApproved = errors.New("carrier KYC not approved")

	// ErrDisputeFlagged signals that the failed attempt was the third
	// cumulative mismatch and the delivery has been moved to the dispute
	// path. The call that trips the threshold still returns this structured
	// outcome rather than a bare failure.
	ErrDisputeFlagged = errors.New("delivery flagged for dispute review")
)
