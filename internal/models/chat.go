package models

import "time"

// Message is one chat entry scoped to a delivery. Append-only; visible only
// while the delivery is matched, picked up, or delivered.
type Message struct {
	ID         string    `json:"message_id" db:"id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type SendMessageRequest struct {
	DeliveryID string `json:"delivery_id" validate:"required"`
	Content    string `json:"content" validate:"required,max=2000"`
}
