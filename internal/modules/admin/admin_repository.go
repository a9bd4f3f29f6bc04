package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepositoryInterface interface {
	ListDisputes(ctx context.Context, status string) ([]models.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID, outcome string, notes *string, at time.Time) (deliveryID, senderID string, err error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	query := `
		SELECT id, delivery_id, raised_by, description, status, admin_notes, created_at, resolved_at
		FROM disputes`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ListDisputes: %w", err)
	}
	defer rows.Close()

	var out []models.Dispute
	for rows.Next() {
		var d models.Dispute
		if err := rows.Scan(&d.ID, &d.DeliveryID, &d.RaisedBy, &d.Description,
			&d.Status, &d.AdminNotes, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, fmt.Errorf("repository.ListDisputes scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveDispute closes an open dispute and moves its delivery to the chosen
// terminal state in one transaction. Double resolution, or a delivery that
// somehow left the disputed state, surfaces as a state conflict.
func (r *Repository) ResolveDispute(ctx context.Context, disputeID, outcome string, notes *string, at time.Time) (string, string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", "", fmt.Errorf("repository.ResolveDispute: %w", err)
	}
	defer tx.Rollback(ctx)

	var deliveryID, disputeStatus string
	err = tx.QueryRow(ctx,
		`SELECT delivery_id, status FROM disputes WHERE id = $1 FOR UPDATE`,
		disputeID,
	).Scan(&deliveryID, &disputeStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", models.ErrNotFound
		}
		return "", "", fmt.Errorf("repository.ResolveDispute: %w", err)
	}
	if disputeStatus != models.DisputeOpen {
		return "", "", fmt.Errorf("%w: dispute already resolved", models.ErrStateConflict)
	}

	timestampCol := "delivered_at"
	if outcome == string(models.StatusCancelled) {
		timestampCol = "cancelled_at"
	}
	var senderID string
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE deliveries
		SET status = $1, %s = $2
		WHERE id = $3 AND status = 'disputed'
		RETURNING sender_id`, timestampCol),
		outcome, at, deliveryID,
	).Scan(&senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("%w: delivery is not disputed", models.ErrStateConflict)
		}
		return "", "", fmt.Errorf("repository.ResolveDispute: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'resolved', admin_notes = $1, resolved_at = $2
		WHERE id = $3`,
		notes, at, disputeID)
	if err != nil {
		return "", "", fmt.Errorf("repository.ResolveDispute: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", fmt.Errorf("repository.ResolveDispute: %w", err)
	}
	return deliveryID, senderID, nil
}
