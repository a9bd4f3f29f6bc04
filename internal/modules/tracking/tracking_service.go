package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"crowdship/internal/models"
	"crowdship/pkg/email"
	"crowdship/pkg/geo"
)

const (
	// signalLossAfter is the silent gap on an in-transit delivery that counts
	// as a dropout.
	signalLossAfter = 10 * time.Minute

	// dropoutWindow and dropoutThreshold define the carrier review rule:
	// three dropouts inside a rolling 30 days flag the carrier.
	dropoutWindow    = 30 * 24 * time.Hour
	dropoutThreshold = 3

	historyLimit = 200
)

// UserDirectory resolves users for notification addressing.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type ServiceInterface interface {
	RecordPing(ctx context.Context, deliveryID, carrierID string, req *models.LocationPingRequest) (*models.LocationPing, error)
	History(ctx context.Context, deliveryID, userID, role string, page, limit int) ([]models.LocationPing, error)
	LastPosition(ctx context.Context, deliveryID string) (lat, lng float64, ok bool, err error)
	DetectSignalLoss(ctx context.Context, now time.Time) error
	ListFlagged(ctx context.Context, now time.Time) ([]models.FlaggedCarrier, error)
}

type Service struct {
	repo     RepositoryInterface
	live     LiveStore
	users    UserDirectory
	notifier email.Notifier

	clock func() time.Time
}

func NewService(repo RepositoryInterface, live LiveStore, users UserDirectory, notifier email.Notifier) *Service {
	return &Service{
		repo:     repo,
		live:     live,
		users:    users,
		notifier: notifier,
		clock:    time.Now,
	}
}

// RecordPing appends a breadcrumb and refreshes the live position. Only the
// assigned carrier may report, and only while the delivery is actually
// moving (matched or picked_up).
func (s *Service) RecordPing(ctx context.Context, deliveryID, carrierID string, req *models.LocationPingRequest) (*models.LocationPing, error) {
	p := geo.Point{Lat: req.Lat, Lng: req.Lng}
	if err := geo.Validate(p); err != nil {
		return nil, err
	}

	ref, err := s.repo.GetDeliveryRef(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if ref.CarrierID == nil || *ref.CarrierID != carrierID {
		return nil, models.ErrForbidden
	}
	if ref.Status != models.StatusMatched && ref.Status != models.StatusPickedUp {
		return nil, fmt.Errorf("%w: delivery is %s", models.ErrStateConflict, ref.Status)
	}

	ping := &models.LocationPing{
		DeliveryID: deliveryID,
		CarrierID:  carrierID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		RecordedAt: s.clock(),
	}
	if err := s.repo.InsertPing(ctx, ping); err != nil {
		return nil, fmt.Errorf("service.RecordPing: %w", err)
	}
	if err := s.live.SetPosition(ctx, deliveryID, p); err != nil {
		// The breadcrumb is durable; the hot position will catch up on the
		// next ping.
		log.Printf("tracking: live position for %s: %v", deliveryID, err)
	}
	return ping, nil
}

// History returns a page of the breadcrumb trail, newest first. Parties and
// admins only.
func (s *Service) History(ctx context.Context, deliveryID, userID, role string, page, limit int) ([]models.LocationPing, error) {
	ref, err := s.repo.GetDeliveryRef(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	isParty := ref.SenderID == userID || (ref.CarrierID != nil && *ref.CarrierID == userID)
	if role != models.RoleAdmin && !isParty {
		return nil, models.ErrForbidden
	}
	if limit < 1 || limit > historyLimit {
		limit = historyLimit
	}
	if page < 1 {
		page = 1
	}
	return s.repo.History(ctx, deliveryID, limit, (page-1)*limit)
}

// LastPosition reports the carrier's newest known coordinates for a delivery.
func (s *Service) LastPosition(ctx context.Context, deliveryID string) (float64, float64, bool, error) {
	p, ok, err := s.live.Position(ctx, deliveryID)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	return p.Lat, p.Lng, true, nil
}

// DetectSignalLoss scans every delivery a carrier is responsible for, from
// match through transit, for reporting gaps. A gap over ten minutes records
// one dropout for the delivery and tells the sender; crossing the
// rolling-window threshold raises the carrier review flag.
func (s *Service) DetectSignalLoss(ctx context.Context, now time.Time) error {
	active, err := s.repo.ListInTransit(ctx)
	if err != nil {
		return fmt.Errorf("service.DetectSignalLoss: %w", err)
	}

	var errs []error
	for _, a := range active {
		last := a.ActiveSince
		if a.LastPingAt != nil {
			last = *a.LastPingAt
		}
		if now.Sub(last) <= signalLossAfter {
			continue
		}

		recorded, err := s.repo.RecordDropout(ctx, &models.CarrierDropout{
			CarrierID:  a.CarrierID,
			DeliveryID: a.DeliveryID,
			DetectedAt: now,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !recorded {
			continue
		}
		s.notifyUser(ctx, email.EventSignalLost, a.DeliveryID, a.SenderID)

		n, err := s.repo.CountDropouts(ctx, a.CarrierID, now.Add(-dropoutWindow))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n >= dropoutThreshold {
			s.notifyUser(ctx, email.EventCarrierFlagged, a.DeliveryID, a.CarrierID)
		}
	}
	return errors.Join(errs...)
}

// ListFlagged surfaces carriers over the dropout threshold for admin review.
func (s *Service) ListFlagged(ctx context.Context, now time.Time) ([]models.FlaggedCarrier, error) {
	return s.repo.ListFlagged(ctx, now.Add(-dropoutWindow), dropoutThreshold)
}

func (s *Service) notifyUser(ctx context.Context, event email.Event, deliveryID, userID string) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		log.Printf("tracking: notify %s for %s: %v", event, deliveryID, err)
		return
	}
	s.notifier.Dispatch(event, deliveryID, u.Email, u.Name)
}
