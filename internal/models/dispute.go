package models

import "time"

// Dispute states.
const (
	DisputeOpen     = "open"
	DisputeResolved = "resolved"
)

// Dispute is the admin-mediated resolution record opened when a delivery
// leaves the happy path (repeated OTP failure, carrier cancel after pickup).
type Dispute struct {
	ID          string     `json:"dispute_id" db:"id"`
	DeliveryID  string     `json:"delivery_id" db:"delivery_id"`
	RaisedBy    string     `json:"raised_by" db:"raised_by"`
	Description string     `json:"description" db:"description"`
	Status      string     `json:"status" db:"status"`
	AdminNotes  *string    `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// ResolveDisputeRequest chooses the terminal outcome for a disputed delivery.
type ResolveDisputeRequest struct {
	Outcome    string  `json:"outcome" validate:"required,oneof=delivered cancelled"`
	AdminNotes *string `json:"admin_notes,omitempty" validate:"omitempty,max=2000"`
}
