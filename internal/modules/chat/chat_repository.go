package chat

import (
	"context"
	"errors"
	"fmt"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRef is the authorization slice the chat window needs.
type DeliveryRef struct {
	SenderID  string
	CarrierID *string
	Status    models.DeliveryStatus
}

type RepositoryInterface interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, deliveryID string, limit, offset int) ([]models.Message, error)
	GetDeliveryRef(ctx context.Context, deliveryID string) (*DeliveryRef, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, delivery_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.DeliveryID, m.SenderID, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.InsertMessage: %w", err)
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, deliveryID string, limit, offset int) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, delivery_id, sender_id, content, created_at
		FROM messages
		WHERE delivery_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`,
		deliveryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.ListMessages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.DeliveryID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListMessages scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) GetDeliveryRef(ctx context.Context, deliveryID string) (*DeliveryRef, error) {
	var ref DeliveryRef
	err := r.db.QueryRow(ctx,
		`SELECT sender_id, carrier_id, status FROM deliveries WHERE id = $1`,
		deliveryID,
	).Scan(&ref.SenderID, &ref.CarrierID, &ref.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.GetDeliveryRef: %w", err)
	}
	return &ref, nil
}
