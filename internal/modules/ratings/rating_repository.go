package ratings

import (
	"context"
	"errors"
	"fmt"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRef is the authorization slice needed to accept a rating.
type DeliveryRef struct {
	SenderID  string
	CarrierID *string
	Status    models.DeliveryStatus
}

type RepositoryInterface interface {
	InsertRating(ctx context.Context, r *models.Rating) (bool, error)
	ListForRatee(ctx context.Context, rateeID string, limit, offset int) ([]models.Rating, error)
	AverageForRatee(ctx context.Context, rateeID string) (avg float64, count int, err error)
	GetDeliveryRef(ctx context.Context, deliveryID string) (*DeliveryRef, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// InsertRating writes at most one rating per (delivery, rater); a duplicate
// reports false without error.
func (r *Repository) InsertRating(ctx context.Context, rating *models.Rating) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO ratings (id, delivery_id, rater_id, ratee_id, stars, review_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (delivery_id, rater_id) DO NOTHING`,
		rating.ID, rating.DeliveryID, rating.RaterID, rating.RateeID,
		rating.Stars, rating.ReviewText, rating.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("repository.InsertRating: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListForRatee(ctx context.Context, rateeID string, limit, offset int) ([]models.Rating, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, delivery_id, rater_id, ratee_id, stars, review_text, created_at
		FROM ratings
		WHERE ratee_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		rateeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.ListForRatee: %w", err)
	}
	defer rows.Close()

	var out []models.Rating
	for rows.Next() {
		var rt models.Rating
		if err := rows.Scan(&rt.ID, &rt.DeliveryID, &rt.RaterID, &rt.RateeID,
			&rt.Stars, &rt.ReviewText, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListForRatee scan: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *Repository) AverageForRatee(ctx context.Context, rateeID string) (float64, int, error) {
	var avg *float64
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT AVG(stars), COUNT(*) FROM ratings WHERE ratee_id = $1`,
		rateeID,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.AverageForRatee: %w", err)
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, count, nil
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
