package models

import "time"

// LocationPing is a single breadcrumb in a carrier's tracked path.
// Append-only; referenced, never mutated.
type LocationPing struct {
	ID         int64     `json:"id" db:"id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	CarrierID  string    `json:"carrier_id" db:"carrier_id"`
	Lat        float64   `json:"lat" db:"lat"`
	Lng        float64   `json:"lng" db:"lng"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// LocationPingRequest is the body a carrier posts on its reporting interval.
type LocationPingRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CarrierDropout records one detected signal gap (>10 min without a ping on
// an active delivery). Three dropouts in a rolling 30-day window flag the
// carrier for admin review.
type CarrierDropout struct {
	ID         int64     `json:"id" db:"id"`
	CarrierID  string    `json:"carrier_id" db:"carrier_id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
}

// FlaggedCarrier is a carrier whose dropout count crossed the review
// threshold, surfaced to the admin collaborator.
type FlaggedCarrier struct {
	CarrierID    string    `json:"carrier_id" db:"carrier_id"`
	DropoutCount int       `json:"dropout_count" db:"dropout_count"`
	LastDropout  time.Time `json:"last_dropout" db:"last_dropout"`
}
