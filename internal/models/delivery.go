package models

import (
	"time"

	"crowdship/pkg/otp"
)

// DeliveryStatus enumerates the delivery lifecycle states.
type DeliveryStatus string

const (
	StatusPosted    DeliveryStatus = "posted"
	StatusMatched   DeliveryStatus = "matched"
	StatusPickedUp  DeliveryStatus = "picked_up"
	StatusDelivered DeliveryStatus = "delivered"
	StatusCancelled DeliveryStatus = "cancelled"
	StatusDisputed  DeliveryStatus = "disputed"
)

// allowedTransitions encodes the lifecycle state machine. delivered and
// cancelled are terminal; disputed is resolved only by an admin.
var allowedTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPosted:   {StatusMatched, StatusCancelled},
	StatusMatched:  {StatusPickedUp, StatusPosted, StatusDisputed},
	StatusPickedUp: {StatusDelivered, StatusDisputed},
	StatusDisputed: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to DeliveryStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Parcel categories accepted at creation.
const (
	CategoryDocuments   = "documents"
	CategoryClothing    = "clothing"
	CategoryFood        = "food"
	CategoryElectronics = "electronics"
	CategoryOther       = "other"
)

// Timing preferences accepted at creation.
const (
	TimingASAP      = "asap"
	TimingWithin2H  = "within_2h"
	TimingWithin4H  = "within_4h"
	TimingScheduled = "scheduled"
)

// Delivery is the central entity of the marketplace. Distance and price are
// computed once at creation and never mutated; carrier_id is null exactly
// while the delivery is posted; OTP plaintexts are never stored, only their
// bcrypt hashes.
type Delivery struct {
	ID             string         `json:"delivery_id" db:"id"`
	SenderID       string         `json:"sender_id" db:"sender_id"`
	CarrierID      *string        `json:"carrier_id,omitempty" db:"carrier_id"`
	PickupAddress  string         `json:"pickup_address" db:"pickup_address"`
	PickupLat      float64        `json:"pickup_lat" db:"pickup_lat"`
	PickupLng      float64        `json:"pickup_lng" db:"pickup_lng"`
	DropoffAddress string         `json:"dropoff_address" db:"dropoff_address"`
	DropoffLat     float64        `json:"dropoff_lat" db:"dropoff_lat"`
	DropoffLng     float64        `json:"dropoff_lng" db:"dropoff_lng"`
	ParcelCategory string         `json:"parcel_category" db:"parcel_category"`
	WeightKg       float64        `json:"weight_kg" db:"weight_kg"`
	DeclaredValue  float64        `json:"declared_value" db:"declared_value"`
	ParcelPhotos   []string       `json:"parcel_photos" db:"parcel_photos"`
	Status         DeliveryStatus `json:"status" db:"status"`
	DistanceKm     float64        `json:"distance_km" db:"distance_km"`
	PriceRs        float64        `json:"price_rs" db:"price_rs"`
	Timing         string         `json:"timing_preference" db:"timing_preference"`
	ScheduledTime  *time.Time     `json:"scheduled_time,omitempty" db:"scheduled_time"`

	PickupOTP   otp.Secret `json:"-"`
	DeliveryOTP otp.Secret `json:"-"`

	PickupPhoto   *string `json:"pickup_photo,omitempty" db:"pickup_photo"`
	DeliveryPhoto *string `json:"delivery_photo,omitempty" db:"delivery_photo"`

	// ReminderSent guards the one-shot pickup reminder between the 20 and 30
	// minute marks of a stalled match.
	ReminderSent bool `json:"-" db:"reminder_sent"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	MatchedAt   *time.Time `json:"matched_at,omitempty" db:"matched_at"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty" db:"picked_up_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// CreateDeliveryRequest is the request body for posting a new delivery.
// Coordinates are range-checked separately so the caller gets the dedicated
// invalid-coordinate error instead of a generic validation message.
type CreateDeliveryRequest struct {
	PickupAddress  string     `json:"pickup_address" validate:"required,min=5"`
	PickupLat      float64    `json:"pickup_lat"`
	PickupLng      float64    `json:"pickup_lng"`
	DropoffAddress string     `json:"dropoff_address" validate:"required,min=5"`
	DropoffLat     float64    `json:"dropoff_lat"`
	DropoffLng     float64    `json:"dropoff_lng"`
	ParcelCategory string     `json:"parcel_category" validate:"required,oneof=documents clothing food electronics other"`
	WeightKg       float64    `json:"weight_kg" validate:"required,gte=0.1,lte=5"`
	DeclaredValue  float64    `json:"declared_value" validate:"required,gt=0"`
	ParcelPhotos   []string   `json:"parcel_photos" validate:"required,min=1,max=3,dive,required"`
	Timing         string     `json:"timing_preference" validate:"required,oneof=asap within_2h within_4h scheduled"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
}

// CreateDeliveryResponse echoes the stored delivery plus the two one-time
// codes. This is the only place plaintext codes cross the wire to the sender;
// they are not recoverable afterwards.
type CreateDeliveryResponse struct {
	Delivery    *Delivery `json:"delivery"`
	PickupOTP   string    `json:"pickup_otp"`
	DeliveryOTP string    `json:"delivery_otp"`
}

// VerifyOTPRequest carries a submitted handover code and the carrier's proof
// photo reference taken at the handover point.
type VerifyOTPRequest struct {
	Code       string `json:"code" validate:"required,len=4,numeric"`
	ProofPhoto string `json:"proof_photo,omitempty"`
}

// PublicTracking is the unauthenticated tracking view. Only the drop-off code
// is ever revealed here (it belongs to the recipient, who has no account);
// the pickup code is never exposed without auth.
type PublicTracking struct {
	DeliveryID       string         `json:"delivery_id"`
	Status           DeliveryStatus `json:"status"`
	SenderFirstName  string         `json:"sender_first_name"`
	CarrierFirstName string         `json:"carrier_first_name,omitempty"`
	LiveLat          *float64       `json:"live_lat,omitempty"`
	LiveLng          *float64       `json:"live_lng,omitempty"`
	ETAMinutes       *float64       `json:"eta_minutes,omitempty"`
	DeliveryOTP      string         `json:"delivery_otp,omitempty"`
}

// NearbyDelivery is a posted delivery annotated with its distance from the
// querying carrier.
type NearbyDelivery struct {
	Delivery
	DistanceFromCarrierKm float64 `json:"distance_from_carrier_km"`
}
