package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTPStage selects which of the two handover codes an update targets.
type OTPStage string

const (
	StagePickup   OTPStage = "pickup"
	StageDelivery OTPStage = "delivery"
)

// RepositoryInterface declares the storage contract for the delivery
// lifecycle. Every state transition is a conditional update keyed on the
// expected current status, so concurrent writers cannot double-apply a
// transition: the loser sees RowsAffected == 0 and reports a conflict.
type RepositoryInterface interface {
	Create(ctx context.Context, d *models.Delivery) error
	FindByID(ctx context.Context, id string) (*models.Delivery, error)
	ListForUser(ctx context.Context, userID, role, status string) ([]*models.Delivery, error)
	ListPosted(ctx context.Context) ([]*models.Delivery, error)
	ListMatchedBefore(ctx context.Context, cutoff time.Time) ([]*models.Delivery, error)

	AcceptIfPosted(ctx context.Context, id, carrierID string, at time.Time) (bool, error)
	MarkPickedUp(ctx context.Context, id string, at time.Time, proofPhoto *string) (bool, error)
	MarkDelivered(ctx context.Context, id string, at time.Time, proofPhoto *string) (bool, error)
	CancelIfPosted(ctx context.Context, id string, at time.Time) (bool, error)
	RebroadcastIfMatched(ctx context.Context, id string) (bool, error)
	MarkDisputed(ctx context.Context, id string, from models.DeliveryStatus) (bool, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)

	IncrementOTPAttempts(ctx context.Context, id string, stage OTPStage) (int, error)

	CreateDispute(ctx context.Context, d *models.Dispute) error
}

// Repository is the PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const deliveryColumns = `
	id, sender_id, carrier_id,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	parcel_category, weight_kg, declared_value, parcel_photos,
	status, distance_km, price_rs, timing_preference, scheduled_time,
	pickup_otp_hash, pickup_otp_expires_at, pickup_otp_attempts, pickup_otp_used,
	delivery_otp_hash, delivery_otp_expires_at, delivery_otp_attempts, delivery_otp_used,
	pickup_photo, delivery_photo, reminder_sent,
	created_at, matched_at, picked_up_at, delivered_at, cancelled_at`

func (r *Repository) Create(ctx context.Context, d *models.Delivery) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO deliveries (
			id, sender_id,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			parcel_category, weight_kg, declared_value, parcel_photos,
			status, distance_km, price_rs, timing_preference, scheduled_time,
			pickup_otp_hash, pickup_otp_expires_at,
			delivery_otp_hash, delivery_otp_expires_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		d.ID, d.SenderID,
		d.PickupAddress, d.PickupLat, d.PickupLng,
		d.DropoffAddress, d.DropoffLat, d.DropoffLng,
		d.ParcelCategory, d.WeightKg, d.DeclaredValue, d.ParcelPhotos,
		string(d.Status), d.DistanceKm, d.PriceRs, d.Timing, d.ScheduledTime,
		d.PickupOTP.Hash, d.PickupOTP.ExpiresAt,
		d.DeliveryOTP.Hash, d.DeliveryOTP.ExpiresAt,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}
	return nil
}

func (r *Repository) scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID, &d.SenderID, &d.CarrierID,
		&d.PickupAddress, &d.PickupLat, &d.PickupLng,
		&d.DropoffAddress, &d.DropoffLat, &d.DropoffLng,
		&d.ParcelCategory, &d.WeightKg, &d.DeclaredValue, &d.ParcelPhotos,
		&d.Status, &d.DistanceKm, &d.PriceRs, &d.Timing, &d.ScheduledTime,
		&d.PickupOTP.Hash, &d.PickupOTP.ExpiresAt, &d.PickupOTP.Attempts, &d.PickupOTP.Used,
		&d.DeliveryOTP.Hash, &d.DeliveryOTP.ExpiresAt, &d.DeliveryOTP.Attempts, &d.DeliveryOTP.Used,
		&d.PickupPhoto, &d.DeliveryPhoto, &d.ReminderSent,
		&d.CreatedAt, &d.MatchedAt, &d.PickedUpAt, &d.DeliveredAt, &d.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	return &d, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Delivery, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)
	return r.scanDelivery(row)
}

func (r *Repository) ListForUser(ctx context.Context, userID, role, status string) ([]*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE `
	args := []interface{}{userID}
	switch role {
	case models.RoleSender:
		query += `sender_id = $1`
	case models.RoleCarrier:
		query += `carrier_id = $1`
	default:
		query += `(sender_id = $1 OR carrier_id = $1)`
	}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ListForUser: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *Repository) ListPosted(ctx context.Context) ([]*models.Delivery, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE status = 'posted' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListPosted: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *Repository) ListMatchedBefore(ctx context.Context, cutoff time.Time) ([]*models.Delivery, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE status = 'matched' AND matched_at <= $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository.ListMatchedBefore: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *Repository) collect(rows pgx.Rows) ([]*models.Delivery, error) {
	var out []*models.Delivery
	for rows.Next() {
		d, err := r.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AcceptIfPosted is the accept race's arbiter: the WHERE clause only matches
// while the delivery is still posted, so exactly one concurrent carrier wins.
func (r *Repository) AcceptIfPosted(ctx context.Context, id, carrierID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET carrier_id = $1, status = 'matched', matched_at = $2
		WHERE id = $3 AND status = 'posted'`,
		carrierID, at, id)
	if err != nil {
		return false, fmt.Errorf("repository.AcceptIfPosted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkPickedUp(ctx context.Context, id string, at time.Time, proofPhoto *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'picked_up', picked_up_at = $1, pickup_otp_used = TRUE,
		    pickup_photo = COALESCE($2, pickup_photo)
		WHERE id = $3 AND status = 'matched' AND pickup_otp_used = FALSE`,
		at, proofPhoto, id)
	if err != nil {
		return false, fmt.Errorf("repository.MarkPickedUp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, id string, at time.Time, proofPhoto *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'delivered', delivered_at = $1, delivery_otp_used = TRUE,
		    delivery_photo = COALESCE($2, delivery_photo)
		WHERE id = $3 AND status = 'picked_up' AND delivery_otp_used = FALSE`,
		at, proofPhoto, id)
	if err != nil {
		return false, fmt.Errorf("repository.MarkDelivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) CancelIfPosted(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'cancelled', cancelled_at = $1
		WHERE id = $2 AND status = 'posted'`,
		at, id)
	if err != nil {
		return false, fmt.Errorf("repository.CancelIfPosted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RebroadcastIfMatched returns a matched delivery to the open pool: carrier
// and matched_at are cleared so the posted-state invariant (no carrier while
// posted) keeps holding. OTP attempt counters survive re-matching.
func (r *Repository) RebroadcastIfMatched(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'posted', carrier_id = NULL, matched_at = NULL, reminder_sent = FALSE
		WHERE id = $1 AND status = 'matched'`,
		id)
	if err != nil {
		return false, fmt.Errorf("repository.RebroadcastIfMatched: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkDisputed(ctx context.Context, id string, from models.DeliveryStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'disputed'
		WHERE id = $1 AND status = $2`,
		id, string(from))
	if err != nil {
		return false, fmt.Errorf("repository.MarkDisputed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReminderSent flips the one-shot reminder flag; the conditional update
// makes the 20-minute reminder idempotent across overlapping sweeps.
func (r *Repository) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE deliveries
		SET reminder_sent = TRUE
		WHERE id = $1 AND status = 'matched' AND reminder_sent = FALSE`,
		id)
	if err != nil {
		return false, fmt.Errorf("repository.MarkReminderSent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementOTPAttempts bumps the stage's failure counter and returns the new
// value. The increment happens in the database so concurrent mismatches are
// never lost.
func (r *Repository) IncrementOTPAttempts(ctx context.Context, id string, stage OTPStage) (int, error) {
	column := "pickup_otp_attempts"
	if stage == StageDelivery {
		column = "delivery_otp_attempts"
	}
	var attempts int
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE deliveries
		SET %s = %s + 1
		WHERE id = $1
		RETURNING %s`, column, column, column),
		id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("repository.IncrementOTPAttempts: %w", err)
	}
	return attempts, nil
}

func (r *Repository) CreateDispute(ctx context.Context, d *models.Dispute) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO disputes (id, delivery_id, raised_by, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.DeliveryID, d.RaisedBy, d.Description, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateDispute: %w", err)
	}
	return nil
}
