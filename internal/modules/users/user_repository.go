package users

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
	CreateUser(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, userID, role string) error

	UpsertCarrierProfile(ctx context.Context, p *models.CarrierProfile) error
	FindCarrierProfile(ctx context.Context, userID string) (*models.CarrierProfile, error)
	SetOnline(ctx context.Context, userID string, online bool, destLat, destLng *float64) error
	ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error)
	SetKYCStatus(ctx context.Context, userID, status string, reason *string, at time.Time) (bool, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, name, picture, role, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.Picture, u.Role, u.PasswordHash, u.IsActive, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateUser: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, picture, role, password_hash, is_active, created_at`

func (r *Repository) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.Role, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *Repository) UpdateRole(ctx context.Context, userID, role string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET role = $1 WHERE id = $2`, role, userID)
	if err != nil {
		return fmt.Errorf("repository.UpdateRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) UpsertCarrierProfile(ctx context.Context, p *models.CarrierProfile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO carrier_profiles (
			user_id, phone_whatsapp, vehicle_type, id_photo, selfie_photo,
			verification_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_whatsapp = EXCLUDED.phone_whatsapp,
			vehicle_type = EXCLUDED.vehicle_type,
			id_photo = EXCLUDED.id_photo,
			selfie_photo = EXCLUDED.selfie_photo,
			verification_status = EXCLUDED.verification_status,
			rejection_reason = NULL,
			approved_at = NULL`,
		p.UserID, p.PhoneWhatsApp, p.VehicleType, p.IDPhoto, p.SelfiePhoto,
		p.VerificationStatus, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.UpsertCarrierProfile: %w", err)
	}
	return nil
}

const profileColumns = `
	user_id, phone_whatsapp, vehicle_type, id_photo, selfie_photo,
	verification_status, rejection_reason, approved_at, is_online,
	destination_lat, destination_lng, created_at`

func (r *Repository) scanProfile(row pgx.Row) (*models.CarrierProfile, error) {
	var p models.CarrierProfile
	err := row.Scan(
		&p.UserID, &p.PhoneWhatsApp, &p.VehicleType, &p.IDPhoto, &p.SelfiePhoto,
		&p.VerificationStatus, &p.RejectionReason, &p.ApprovedAt, &p.IsOnline,
		&p.DestinationLat, &p.DestinationLng, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan carrier profile: %w", err)
	}
	return &p, nil
}

func (r *Repository) FindCarrierProfile(ctx context.Context, userID string) (*models.CarrierProfile, error) {
	return r.scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM carrier_profiles WHERE user_id = $1`, userID))
}

func (r *Repository) SetOnline(ctx context.Context, userID string, online bool, destLat, destLng *float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE carrier_profiles
		SET is_online = $1, destination_lat = $2, destination_lng = $3
		WHERE user_id = $4`,
		online, destLat, destLng, userID)
	if err != nil {
		return fmt.Errorf("repository.SetOnline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM carrier_profiles WHERE verification_status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListPendingKYC: %w", err)
	}
	defer rows.Close()

	var out []models.CarrierProfile
	for rows.Next() {
		p, err := r.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SetKYCStatus resolves a pending application. The conditional update keeps
// two admins from double-resolving the same one.
func (r *Repository) SetKYCStatus(ctx context.Context, userID, status string, reason *string, at time.Time) (bool, error) {
	var approvedAt *time.Time
	if status == models.KYCApproved {
		approvedAt = &at
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE carrier_profiles
		SET verification_status = $1, rejection_reason = $2, approved_at = $3
		WHERE user_id = $4 AND verification_status = 'pending'`,
		status, reason, approvedAt, userID)
	if err != nil {
		return false, fmt.Errorf("repository.SetKYCStatus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
