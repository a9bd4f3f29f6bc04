package models

import "time"

// User roles. A user switches between sender and carrier through an explicit
// role-switch operation; admin is assigned out of band.
const (
	RoleSender  = "sender"
	RoleCarrier = "carrier"
	RoleAdmin   = "admin"
)

// KYC verification states for carrier profiles.
const (
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

type User struct {
	ID           string    `json:"user_id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Picture      *string   `json:"picture,omitempty" db:"picture"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CarrierProfile holds KYC and availability state for a user acting as a
// carrier. Document photos are opaque references, never interpreted.
type CarrierProfile struct {
	UserID             string     `json:"user_id" db:"user_id"`
	PhoneWhatsApp      string     `json:"phone_whatsapp" db:"phone_whatsapp"`
	VehicleType        string     `json:"vehicle_type" db:"vehicle_type"`
	IDPhoto            string     `json:"-" db:"id_photo"`
	SelfiePhoto        string     `json:"-" db:"selfie_photo"`
	VerificationStatus string     `json:"verification_status" db:"verification_status"`
	RejectionReason    *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	IsOnline           bool       `json:"is_online" db:"is_online"`
	DestinationLat     *float64   `json:"current_destination_lat,omitempty" db:"destination_lat"`
	DestinationLng     *float64   `json:"current_destination_lng,omitempty" db:"destination_lng"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// SwitchRoleRequest toggles the caller between sender and carrier. Admin is
// deliberately not switchable through this endpoint.
type SwitchRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=sender carrier"`
}

type KYCSubmitRequest struct {
	PhoneWhatsApp string `json:"phone_whatsapp" validate:"required,min=8,max=20"`
	VehicleType   string `json:"vehicle_type" validate:"required,oneof=bike car auto bus train walking"`
	IDPhoto       string `json:"id_photo" validate:"required"`
	SelfiePhoto   string `json:"selfie_photo" validate:"required"`
}

type OnlineToggleRequest struct {
	IsOnline       bool     `json:"is_online"`
	DestinationLat *float64 `json:"destination_lat,omitempty"`
	DestinationLng *float64 `json:"destination_lng,omitempty"`
}
