package admin

import (
	"context"
	"fmt"
	"log"
	"time"

	"crowdship/internal/models"
	"crowdship/pkg/email"
)

// KYCReviewer is the slice of the users module the back office drives.
type KYCReviewer interface {
	ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error)
	SetKYCStatus(ctx context.Context, userID, status string, reason *string) error
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// RateCardAdmin is the pricing module's configuration surface.
type RateCardAdmin interface {
	ListConfig(ctx context.Context) ([]models.ConfigItem, error)
	UpdateConfig(ctx context.Context, key string, value float64) error
}

// CarrierWatch surfaces carriers over the dropout threshold.
type CarrierWatch interface {
	ListFlagged(ctx context.Context, now time.Time) ([]models.FlaggedCarrier, error)
}

type ServiceInterface interface {
	ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error)
	ResolveKYC(ctx context.Context, userID, status string, reason *string) error

	ListDisputes(ctx context.Context, status string) ([]models.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID string, req *models.ResolveDisputeRequest) error

	ListConfig(ctx context.Context) ([]models.ConfigItem, error)
	UpdateConfig(ctx context.Context, req *models.UpdateConfigRequest) error

	ListFlaggedCarriers(ctx context.Context) ([]models.FlaggedCarrier, error)
}

type Service struct {
	repo     RepositoryInterface
	kyc      KYCReviewer
	rates    RateCardAdmin
	watch    CarrierWatch
	notifier email.Notifier

	clock func() time.Time
}

func NewService(repo RepositoryInterface, kyc KYCReviewer, rates RateCardAdmin, watch CarrierWatch, notifier email.Notifier) *Service {
	return &Service{
		repo:     repo,
		kyc:      kyc,
		rates:    rates,
		watch:    watch,
		notifier: notifier,
		clock:    time.Now,
	}
}

func (s *Service) ListPendingKYC(ctx context.Context) ([]models.CarrierProfile, error) {
	return s.kyc.ListPendingKYC(ctx)
}

func (s *Service) ResolveKYC(ctx context.Context, userID, status string, reason *string) error {
	if status == models.KYCRejected && (reason == nil || *reason == "") {
		return fmt.Errorf("%w: rejection requires a reason", models.ErrValidation)
	}
	return s.kyc.SetKYCStatus(ctx, userID, status, reason)
}

func (s *Service) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	return s.repo.ListDisputes(ctx, status)
}

// ResolveDispute applies the admin's verdict. The outcome is constrained to
// the transitions a disputed delivery may take, then the sender hears about
// a completed handover.
func (s *Service) ResolveDispute(ctx context.Context, disputeID string, req *models.ResolveDisputeRequest) error {
	outcome := models.DeliveryStatus(req.Outcome)
	if !models.CanTransition(models.StatusDisputed, outcome) {
		return fmt.Errorf("%w: outcome %s not allowed", models.ErrValidation, outcome)
	}

	deliveryID, senderID, err := s.repo.ResolveDispute(ctx, disputeID, req.Outcome, req.AdminNotes, s.clock())
	if err != nil {
		return err
	}

	if outcome == models.StatusDelivered {
		if u, err := s.kyc.FindByID(ctx, senderID); err == nil {
			s.notifier.Dispatch(email.EventDelivered, deliveryID, u.Email, u.Name)
		} else {
			log.Printf("admin: notify resolution for %s: %v", deliveryID, err)
		}
	}
	return nil
}

func (s *Service) ListConfig(ctx context.Context) ([]models.ConfigItem, error) {
	return s.rates.ListConfig(ctx)
}

func (s *Service) UpdateConfig(ctx context.Context, req *models.UpdateConfigRequest) error {
	return s.rates.UpdateConfig(ctx, req.Key, req.Value)
}

func (s *Service) ListFlaggedCarriers(ctx context.Context) ([]models.FlaggedCarrier, error) {
	return s.watch.ListFlagged(ctx, s.clock())
}
