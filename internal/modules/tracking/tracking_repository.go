package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdship/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActiveDelivery is the slice of a delivery the signal-loss scan needs:
// identity, the responsible carrier, when that responsibility began and the
// newest breadcrumb, if any.
type ActiveDelivery struct {
	DeliveryID  string
	SenderID    string
	CarrierID   string
	ActiveSince time.Time
	LastPingAt  *time.Time
}

// DeliveryRef is what the ping guard needs to authorize a carrier report.
type DeliveryRef struct {
	SenderID  string
	CarrierID *string
	Status    models.DeliveryStatus
}

type RepositoryInterface interface {
	InsertPing(ctx context.Context, ping *models.LocationPing) error
	History(ctx context.Context, deliveryID string, limit, offset int) ([]models.LocationPing, error)
	GetDeliveryRef(ctx context.Context, deliveryID string) (*DeliveryRef, error)
	ListInTransit(ctx context.Context) ([]ActiveDelivery, error)
	RecordDropout(ctx context.Context, d *models.CarrierDropout) (bool, error)
	CountDropouts(ctx context.Context, carrierID string, since time.Time) (int, error)
	ListFlagged(ctx context.Context, since time.Time, threshold int) ([]models.FlaggedCarrier, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) InsertPing(ctx context.Context, ping *models.LocationPing) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO location_pings (delivery_id, carrier_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ping.DeliveryID, ping.CarrierID, ping.Lat, ping.Lng, ping.RecordedAt,
	).Scan(&ping.ID)
	if err != nil {
		return fmt.Errorf("repository.InsertPing: %w", err)
	}
	return nil
}

func (r *Repository) History(ctx context.Context, deliveryID string, limit, offset int) ([]models.LocationPing, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, delivery_id, carrier_id, lat, lng, recorded_at
		FROM location_pings
		WHERE delivery_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2 OFFSET $3`,
		deliveryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.History: %w", err)
	}
	defer rows.Close()

	var pings []models.LocationPing
	for rows.Next() {
		var p models.LocationPing
		if err := rows.Scan(&p.ID, &p.DeliveryID, &p.CarrierID, &p.Lat, &p.Lng, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("repository.History scan: %w", err)
		}
		pings = append(pings, p)
	}
	return pings, rows.Err()
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

// ListInTransit returns every delivery a carrier currently owes pings for,
// matched or picked up, with its newest breadcrumb timestamp. The baseline
// for a never-pinged delivery is pickup time when there is one, match time
// otherwise.
func (r *Repository) ListInTransit(ctx context.Context) ([]ActiveDelivery, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.sender_id, d.carrier_id,
		       COALESCE(d.picked_up_at, d.matched_at), MAX(p.recorded_at)
		FROM deliveries d
		LEFT JOIN location_pings p ON p.delivery_id = d.id
		WHERE d.status IN ('matched', 'picked_up')
		GROUP BY d.id, d.sender_id, d.carrier_id, d.picked_up_at, d.matched_at`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListInTransit: %w", err)
	}
	defer rows.Close()

	var out []ActiveDelivery
	for rows.Next() {
		var a ActiveDelivery
		if err := rows.Scan(&a.DeliveryID, &a.SenderID, &a.CarrierID, &a.ActiveSince, &a.LastPingAt); err != nil {
			return nil, fmt.Errorf("repository.ListInTransit scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordDropout inserts at most one dropout per delivery; repeated scans of
// the same gap are no-ops. Returns whether a new row was written.
func (r *Repository) RecordDropout(ctx context.Context, d *models.CarrierDropout) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO carrier_dropouts (carrier_id, delivery_id, detected_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (delivery_id) DO NOTHING`,
		d.CarrierID, d.DeliveryID, d.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("repository.RecordDropout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) CountDropouts(ctx context.Context, carrierID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM carrier_dropouts WHERE carrier_id = $1 AND detected_at >= $2`,
		carrierID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repository.CountDropouts: %w", err)
	}
	return n, nil
}

func (r *Repository) ListFlagged(ctx context.Context, since time.Time, threshold int) ([]models.FlaggedCarrier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT carrier_id, COUNT(*), MAX(detected_at)
		FROM carrier_dropouts
		WHERE detected_at >= $1
		GROUP BY carrier_id
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC`,
		since, threshold)
	if err != nil {
		return nil, fmt.Errorf("repository.ListFlagged: %w", err)
	}
	defer rows.Close()

	var out []models.FlaggedCarrier
	for rows.Next() {
		var f models.FlaggedCarrier
		if err := rows.Scan(&f.CarrierID, &f.DropoutCount, &f.LastDropout); err != nil {
			return nil, fmt.Errorf("repository.ListFlagged scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
