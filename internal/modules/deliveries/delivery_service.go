package deliveries

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"crowdship/internal/models"
	"crowdship/pkg/email"
	"crowdship/pkg/geo"
	"crowdship/pkg/otp"

	"github.com/google/uuid"
)

const (
	// A matched delivery gets one pickup reminder at 20 minutes and returns
	// to the open pool at 30.
	pickupReminderAfter = 20 * time.Minute
	rebroadcastAfter    = 30 * time.Minute

	// Default search radius for the carrier feed.
	defaultNearbyRadiusKm = 10
)

// PricingService is the slice of the pricing module the delivery core needs.
type PricingService interface {
	Estimate(ctx context.Context, pickup, dropoff geo.Point, weightKg float64, timing string) (distanceKm, price float64, err error)
}

// UserDirectory resolves identities for authorization checks and
// notification addressing.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	IsApprovedCarrier(ctx context.Context, userID string) (bool, error)
}

// LiveLocator reports the carrier's last known position on a delivery, fed by
// the tracking module's ping ingest.
type LiveLocator interface {
	LastPosition(ctx context.Context, deliveryID string) (lat, lng float64, ok bool, err error)
}

// ServiceInterface is the delivery lifecycle API.
type ServiceInterface interface {
	Create(ctx context.Context, senderID string, req *models.CreateDeliveryRequest) (*models.CreateDeliveryResponse, error)
	Get(ctx context.Context, deliveryID, userID, role string) (*models.Delivery, error)
	ListMine(ctx context.Context, userID, role, status string) ([]*models.Delivery, error)
	ListNearby(ctx context.Context, carrierID string, at geo.Point, radiusKm float64) ([]models.NearbyDelivery, error)
	Accept(ctx context.Context, deliveryID, carrierID string) (*models.Delivery, error)
	VerifyPickup(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest) (*models.Delivery, error)
	VerifyDelivery(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest) (*models.Delivery, error)
	Cancel(ctx context.Context, deliveryID, actorID string) (*models.Delivery, error)
	OpenDispute(ctx context.Context, deliveryID, actorID, description string) error
	PublicTracking(ctx context.Context, deliveryID string) (*models.PublicTracking, error)
	SweepTimeouts(ctx context.Context, now time.Time) error
}

type Service struct {
	repo     RepositoryInterface
	pricing  PricingService
	users    UserDirectory
	live     LiveLocator
	cache    Cache
	notifier email.Notifier

	clock func() time.Time

	// Per-delivery locks serialize OTP verification so the attempt counter
	// and the dispute threshold cannot race. Entries are dropped once the
	// delivery reaches a terminal state.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo RepositoryInterface, pricing PricingService, users UserDirectory, live LiveLocator, cache Cache, notifier email.Notifier) *Service {
	return &Service{
		repo:     repo,
		pricing:  pricing,
		users:    users,
		live:     live,
		cache:    cache,
		notifier: notifier,
		clock:    time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(deliveryID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[deliveryID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[deliveryID] = m
	}
	return m
}

func (s *Service) dropLock(deliveryID string) {
	s.mu.Lock()
	delete(s.locks, deliveryID)
	s.mu.Unlock()
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func firstName(fullName string) string {
	if fields := strings.Fields(fullName); len(fields) > 0 {
		return fields[0]
	}
	return fullName
}

// Create prices the trip, issues both handover codes and persists the
// delivery as posted. The plaintext codes are returned to the sender exactly
// once; storage only ever sees their hashes. The drop-off code is additionally
// parked in the cache for the public tracking page, bounded by the code TTL.
func (s *Service) Create(ctx context.Context, senderID string, req *models.CreateDeliveryRequest) (*models.CreateDeliveryResponse, error) {
	if req.Timing == models.TimingScheduled && req.ScheduledTime == nil {
		return nil, fmt.Errorf("%w: scheduled_time is required for scheduled timing", models.ErrValidation)
	}

	pickup := geo.Point{Lat: req.PickupLat, Lng: req.PickupLng}
	dropoff := geo.Point{Lat: req.DropoffLat, Lng: req.DropoffLng}
	distance, price, err := s.pricing.Estimate(ctx, pickup, dropoff, req.WeightKg, req.Timing)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	now := s.clock()
	pickupCode, pickupSecret, err := otp.Issue(now)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}
	dropCode, dropSecret, err := otp.Issue(now)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	d := &models.Delivery{
		ID:             newID("delivery"),
		SenderID:       senderID,
		PickupAddress:  req.PickupAddress,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		DropoffAddress: req.DropoffAddress,
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		ParcelCategory: req.ParcelCategory,
		WeightKg:       req.WeightKg,
		DeclaredValue:  req.DeclaredValue,
		ParcelPhotos:   req.ParcelPhotos,
		Status:         models.StatusPosted,
		DistanceKm:     distance,
		PriceRs:        price,
		Timing:         req.Timing,
		ScheduledTime:  req.ScheduledTime,
		PickupOTP:      pickupSecret,
		DeliveryOTP:    dropSecret,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	if err := s.cache.StoreDropOTP(ctx, d.ID, dropCode, otp.TTL); err != nil {
		// Tracking falls back to a code-less page; not worth failing creation.
		log.Printf("deliveries: cache drop code for %s: %v", d.ID, err)
	}

	return &models.CreateDeliveryResponse{
		Delivery:    d,
		PickupOTP:   pickupCode,
		DeliveryOTP: dropCode,
	}, nil
}

// Get returns a delivery to one of its parties or an admin.
func (s *Service) Get(ctx context.Context, deliveryID, userID, role string) (*models.Delivery, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && !isParty(d, userID) {
		return nil, models.ErrForbidden
	}
	return d, nil
}

func isParty(d *models.Delivery, userID string) bool {
	if d.SenderID == userID {
		return true
	}
	return d.CarrierID != nil && *d.CarrierID == userID
}

func (s *Service) ListMine(ctx context.Context, userID, role, status string) ([]*models.Delivery, error) {
	return s.repo.ListForUser(ctx, userID, role, status)
}

// ListNearby is the carrier feed: open deliveries whose pickup point lies
// within radiusKm of the carrier, nearest first. Only KYC-approved carriers
// may browse, and a carrier never sees its own postings.
func (s *Service) ListNearby(ctx context.Context, carrierID string, at geo.Point, radiusKm float64) ([]models.NearbyDelivery, error) {
	approved, err := s.users.IsApprovedCarrier(ctx, carrierID)
	if err != nil {
		return nil, fmt.Errorf("service.ListNearby: %w", err)
	}
	if !approved {
		return nil, models.ErrKYCNotApproved
	}
	if err := geo.Validate(at); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRadiusKm
	}

	posted, err := s.repo.ListPosted(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ListNearby: %w", err)
	}

	var out []models.NearbyDelivery
	for _, d := range posted {
		if d.SenderID == carrierID {
			continue
		}
		dist := geo.DistanceKm(at, geo.Point{Lat: d.PickupLat, Lng: d.PickupLng})
		if dist > radiusKm {
			continue
		}
		out = append(out, models.NearbyDelivery{Delivery: *d, DistanceFromCarrierKm: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DistanceFromCarrierKm < out[j].DistanceFromCarrierKm
	})
	return out, nil
}

// Accept claims a posted delivery for a carrier. The claim is a single
// conditional update, so when several carriers race for the same delivery
// exactly one wins and the rest get a state conflict.
func (s *Service) Accept(ctx context.Context, deliveryID, carrierID string) (*models.Delivery, error) {
	approved, err := s.users.IsApprovedCarrier(ctx, carrierID)
	if err != nil {
		return nil, fmt.Errorf("service.Accept: %w", err)
	}
	if !approved {
		return nil, models.ErrKYCNotApproved
	}

	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.SenderID == carrierID {
		return nil, fmt.Errorf("%w: cannot carry your own delivery", models.ErrForbidden)
	}

	ok, err := s.repo.AcceptIfPosted(ctx, deliveryID, carrierID, s.clock())
	if err != nil {
		return nil, fmt.Errorf("service.Accept: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: delivery is no longer open", models.ErrStateConflict)
	}

	d, err = s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	s.notifyUser(ctx, email.EventMatched, d.ID, d.SenderID)
	return d, nil
}

// VerifyPickup checks the sender's handover code and moves the delivery to
// picked_up. Three cumulative mismatches freeze the delivery as disputed.
func (s *Service) VerifyPickup(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest) (*models.Delivery, error) {
	return s.verifyHandover(ctx, deliveryID, carrierID, req, StagePickup)
}

// VerifyDelivery checks the recipient's code and completes the delivery.
func (s *Service) VerifyDelivery(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest) (*models.Delivery, error) {
	return s.verifyHandover(ctx, deliveryID, carrierID, req, StageDelivery)
}

func (s *Service) verifyHandover(ctx context.Context, deliveryID, carrierID string, req *models.VerifyOTPRequest, stage OTPStage) (*models.Delivery, error) {
	lock := s.lockFor(deliveryID)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	expected := models.StatusMatched
	secret := d.PickupOTP
	if stage == StageDelivery {
		expected = models.StatusPickedUp
		secret = d.DeliveryOTP
	}
	if d.Status == models.StatusDisputed {
		return nil, models.ErrDisputeFlagged
	}
	if d.Status != expected {
		return nil, fmt.Errorf("%w: delivery is %s", models.ErrStateConflict, d.Status)
	}
	if d.CarrierID == nil || *d.CarrierID != carrierID {
		return nil, models.ErrForbidden
	}

	now := s.clock()
	if err := otp.Verify(secret, req.Code, now); err != nil {
		if errors.Is(err, otp.ErrMismatch) {
			return nil, s.recordMismatch(ctx, d, stage, expected)
		}
		return nil, err
	}

	var photo *string
	if req.ProofPhoto != "" {
		photo = &req.ProofPhoto
	}
	var (
		ok    bool
		event email.Event
	)
	if stage == StagePickup {
		ok, err = s.repo.MarkPickedUp(ctx, deliveryID, now, photo)
		event = email.EventPickedUp
	} else {
		ok, err = s.repo.MarkDelivered(ctx, deliveryID, now, photo)
		event = email.EventDelivered
	}
	if err != nil {
		return nil, fmt.Errorf("service.verifyHandover: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: delivery is %s", models.ErrStateConflict, d.Status)
	}

	d, err = s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	s.notifyUser(ctx, event, d.ID, d.SenderID)
	if d.Status.IsTerminal() {
		s.dropLock(deliveryID)
	}
	return d, nil
}

// recordMismatch bumps the stage's attempt counter and, at the threshold,
// freezes the delivery and opens a dispute for admin review.
func (s *Service) recordMismatch(ctx context.Context, d *models.Delivery, stage OTPStage, from models.DeliveryStatus) error {
	attempts, err := s.repo.IncrementOTPAttempts(ctx, d.ID, stage)
	if err != nil {
		return fmt.Errorf("service.recordMismatch: %w", err)
	}
	if attempts < otp.MaxAttempts {
		return fmt.Errorf("%s verification: %w", stage, otp.ErrMismatch)
	}

	ok, err := s.repo.MarkDisputed(ctx, d.ID, from)
	if err != nil {
		return fmt.Errorf("service.recordMismatch: %w", err)
	}
	if !ok {
		// The delivery left the expected state between our read and the
		// freeze; whoever moved it owns the outcome.
		return fmt.Errorf("%w: delivery is no longer %s", models.ErrStateConflict, from)
	}
	dispute := &models.Dispute{
		ID:          newID("dispute"),
		DeliveryID:  d.ID,
		RaisedBy:    "system",
		Description: fmt.Sprintf("%s code failed %d times", stage, attempts),
		Status:      models.DisputeOpen,
		CreatedAt:   s.clock(),
	}
	if err := s.repo.CreateDispute(ctx, dispute); err != nil {
		return fmt.Errorf("service.recordMismatch: %w", err)
	}
	s.notifyUser(ctx, email.EventDisputed, d.ID, d.SenderID)
	return models.ErrDisputeFlagged
}

// Cancel handles party-initiated withdrawal. A posted delivery is cancelled
// outright by its sender. A matched delivery returns to the open pool,
// whoever backs out. Once the parcel is in transit there is no cancel, only
// the dispute path.
func (s *Service) Cancel(ctx context.Context, deliveryID, actorID string) (*models.Delivery, error) {
	lock := s.lockFor(deliveryID)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	switch d.Status {
	case models.StatusPosted:
		if d.SenderID != actorID {
			return nil, models.ErrForbidden
		}
		ok, err := s.repo.CancelIfPosted(ctx, deliveryID, s.clock())
		if err != nil {
			return nil, fmt.Errorf("service.Cancel: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: delivery is no longer posted", models.ErrStateConflict)
		}
		s.dropLock(deliveryID)

	case models.StatusMatched:
		if !isParty(d, actorID) {
			return nil, models.ErrForbidden
		}
		ok, err := s.repo.RebroadcastIfMatched(ctx, deliveryID)
		if err != nil {
			return nil, fmt.Errorf("service.Cancel: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: delivery is no longer matched", models.ErrStateConflict)
		}
		if actorID != d.SenderID {
			s.notifyUser(ctx, email.EventRebroadcast, d.ID, d.SenderID)
		}

	default:
		return nil, fmt.Errorf("%w: cannot cancel a %s delivery", models.ErrStateConflict, d.Status)
	}

	return s.repo.FindByID(ctx, deliveryID)
}

// OpenDispute lets either party pull an active delivery out of the happy path
// manually, typically a carrier abandoning after pickup.
func (s *Service) OpenDispute(ctx context.Context, deliveryID, actorID, description string) error {
	lock := s.lockFor(deliveryID)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !isParty(d, actorID) {
		return models.ErrForbidden
	}
	if !models.CanTransition(d.Status, models.StatusDisputed) {
		return fmt.Errorf("%w: cannot dispute a %s delivery", models.ErrStateConflict, d.Status)
	}

	ok, err := s.repo.MarkDisputed(ctx, deliveryID, d.Status)
	if err != nil {
		return fmt.Errorf("service.OpenDispute: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: delivery changed state", models.ErrStateConflict)
	}

	dispute := &models.Dispute{
		ID:          newID("dispute"),
		DeliveryID:  deliveryID,
		RaisedBy:    actorID,
		Description: description,
		Status:      models.DisputeOpen,
		CreatedAt:   s.clock(),
	}
	if err := s.repo.CreateDispute(ctx, dispute); err != nil {
		return fmt.Errorf("service.OpenDispute: %w", err)
	}
	if actorID != d.SenderID {
		s.notifyUser(ctx, email.EventDisputed, d.ID, d.SenderID)
	}
	return nil
}

// PublicTracking builds the unauthenticated recipient view: first names only,
// the carrier's live position with a rough ETA, and the drop-off code while
// the delivery is active. The pickup code never appears here.
func (s *Service) PublicTracking(ctx context.Context, deliveryID string) (*models.PublicTracking, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	view := &models.PublicTracking{
		DeliveryID: d.ID,
		Status:     d.Status,
	}
	if sender, err := s.users.FindByID(ctx, d.SenderID); err == nil {
		view.SenderFirstName = firstName(sender.Name)
	}
	if d.CarrierID != nil {
		if carrier, err := s.users.FindByID(ctx, *d.CarrierID); err == nil {
			view.CarrierFirstName = firstName(carrier.Name)
		}
	}

	active := d.Status == models.StatusMatched || d.Status == models.StatusPickedUp
	if !active {
		return view, nil
	}

	if code, err := s.cache.DropOTP(ctx, d.ID); err == nil && code != "" {
		view.DeliveryOTP = code
	}

	lat, lng, ok, err := s.live.LastPosition(ctx, d.ID)
	if err != nil || !ok {
		return view, nil
	}
	view.LiveLat = &lat
	view.LiveLng = &lng

	// Before pickup the carrier is heading to the sender; after, to the
	// recipient.
	target := geo.Point{Lat: d.PickupLat, Lng: d.PickupLng}
	if d.Status == models.StatusPickedUp {
		target = geo.Point{Lat: d.DropoffLat, Lng: d.DropoffLng}
	}
	eta := geo.ETAMinutes(geo.DistanceKm(geo.Point{Lat: lat, Lng: lng}, target))
	view.ETAMinutes = &eta
	return view, nil
}

// SweepTimeouts runs the match-timeout policy over all stalled matches: a
// reminder to the carrier at 20 minutes, then an automatic return to the open
// pool at 30. Safe to run concurrently; every mutation is conditional.
func (s *Service) SweepTimeouts(ctx context.Context, now time.Time) error {
	stalled, err := s.repo.ListMatchedBefore(ctx, now.Add(-pickupReminderAfter))
	if err != nil {
		return fmt.Errorf("service.SweepTimeouts: %w", err)
	}

	var errs []error
	for _, d := range stalled {
		if d.MatchedAt == nil {
			continue
		}
		age := now.Sub(*d.MatchedAt)

		if age >= rebroadcastAfter {
			ok, err := s.repo.RebroadcastIfMatched(ctx, d.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				s.notifyUser(ctx, email.EventRebroadcast, d.ID, d.SenderID)
			}
			continue
		}

		if d.ReminderSent || d.CarrierID == nil {
			continue
		}
		ok, err := s.repo.MarkReminderSent(ctx, d.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			s.notifyUser(ctx, email.EventPickupReminder, d.ID, *d.CarrierID)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) notifyUser(ctx context.Context, event email.Event, deliveryID, userID string) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		log.Printf("deliveries: notify %s for %s: %v", event, deliveryID, err)
		return
	}
	s.notifier.Dispatch(event, deliveryID, u.Email, firstName(u.Name))
}
