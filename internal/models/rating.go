package models

import "time"

// Rating is a post-delivery review. Each party may rate the other exactly
// once per delivery.
type Rating struct {
	ID         string    `json:"rating_id" db:"id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	RaterID    string    `json:"rater_id" db:"rater_id"`
	RateeID    string    `json:"ratee_id" db:"ratee_id"`
	Stars      int       `json:"stars" db:"stars"`
	ReviewText *string   `json:"review_text,omitempty" db:"review_text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type CreateRatingRequest struct {
	DeliveryID string  `json:"delivery_id" validate:"required"`
	Stars      int     `json:"stars" validate:"required,min=1,max=5"`
	ReviewText *string `json:"review_text,omitempty" validate:"omitempty,max=1000"`
}
