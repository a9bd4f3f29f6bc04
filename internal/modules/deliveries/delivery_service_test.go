package deliveries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"crowdship/internal/models"
	"crowdship/pkg/email"
	"crowdship/pkg/geo"
	"crowdship/pkg/otp"
)

// memRepo is an in-memory RepositoryInterface that honors the conditional
// update contract, so concurrency tests exercise the same winner-takes-it
// semantics the SQL repository provides.
type memRepo struct {
	mu         sync.Mutex
	deliveries map[string]*models.Delivery
	disputes   []*models.Dispute
}

func newMemRepo() *memRepo {
	return &memRepo{deliveries: make(map[string]*models.Delivery)}
}

func (r *memRepo) Create(_ context.Context, d *models.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListForUser(_ context.Context, userID, role, status string) ([]*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Delivery
	for _, d := range r.deliveries {
		isSender := d.SenderID == userID
		isCarrier := d.CarrierID != nil && *d.CarrierID == userID
		switch role {
		case models.RoleSender:
			if !isSender {
				continue
			}
		case models.RoleCarrier:
			if !isCarrier {
				continue
			}
		default:
			if !isSender && !isCarrier {
				continue
			}
		}
		if status != "" && string(d.Status) != status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) ListPosted(_ context.Context) ([]*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Delivery
	for _, d := range r.deliveries {
		if d.Status == models.StatusPosted {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) ListMatchedBefore(_ context.Context, cutoff time.Time) ([]*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Delivery
	for _, d := range r.deliveries {
		if d.Status == models.StatusMatched && d.MatchedAt != nil && !d.MatchedAt.After(cutoff) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) AcceptIfPosted(_ context.Context, id, carrierID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusPosted {
		return false, nil
	}
	d.Status = models.StatusMatched
	d.CarrierID = &carrierID
	d.MatchedAt = &at
	return true, nil
}

func (r *memRepo) MarkPickedUp(_ context.Context, id string, at time.Time, photo *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusMatched || d.PickupOTP.Used {
		return false, nil
	}
	d.Status = models.StatusPickedUp
	d.PickedUpAt = &at
	d.PickupOTP.Used = true
	if photo != nil {
		d.PickupPhoto = photo
	}
	return true, nil
}

func (r *memRepo) MarkDelivered(_ context.Context, id string, at time.Time, photo *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusPickedUp || d.DeliveryOTP.Used {
		return false, nil
	}
	d.Status = models.StatusDelivered
	d.DeliveredAt = &at
	d.DeliveryOTP.Used = true
	if photo != nil {
		d.DeliveryPhoto = photo
	}
	return true, nil
}

func (r *memRepo) CancelIfPosted(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusPosted {
		return false, nil
	}
	d.Status = models.StatusCancelled
	d.CancelledAt = &at
	return true, nil
}

func (r *memRepo) RebroadcastIfMatched(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusMatched {
		return false, nil
	}
	d.Status = models.StatusPosted
	d.CarrierID = nil
	d.MatchedAt = nil
	d.ReminderSent = false
	return true, nil
}

func (r *memRepo) MarkDisputed(_ context.Context, id string, from models.DeliveryStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = models.StatusDisputed
	return true, nil
}

func (r *memRepo) MarkReminderSent(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != models.StatusMatched || d.ReminderSent {
		return false, nil
	}
	d.ReminderSent = true
	return true, nil
}

func (r *memRepo) IncrementOTPAttempts(_ context.Context, id string, stage OTPStage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	if stage == StageDelivery {
		d.DeliveryOTP.Attempts++
		return d.DeliveryOTP.Attempts, nil
	}
	d.PickupOTP.Attempts++
	return d.PickupOTP.Attempts, nil
}

func (r *memRepo) CreateDispute(_ context.Context, d *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.disputes = append(r.disputes, &cp)
	return nil
}

// Collaborator fakes.

type stubPricing struct{}

func (stubPricing) Estimate(_ context.Context, pickup, dropoff geo.Point, _ float64, _ string) (float64, float64, error) {
	if err := geo.Validate(pickup); err != nil {
		return 0, 0, err
	}
	if err := geo.Validate(dropoff); err != nil {
		return 0, 0, err
	}
	return 5.2, 46, nil
}

type fakeUsers struct {
	users    map[string]*models.User
	approved map[string]bool
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) IsApprovedCarrier(_ context.Context, id string) (bool, error) {
	return f.approved[id], nil
}

type fakeLocator struct {
	lat, lng float64
	ok       bool
}

func (f *fakeLocator) LastPosition(context.Context, string) (float64, float64, bool, error) {
	return f.lat, f.lng, f.ok, nil
}

type memCache struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *memCache) StoreDropOTP(_ context.Context, id, code string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[id] = code
	return nil
}

func (c *memCache) DropOTP(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[id], nil
}

type env struct {
	svc   *Service
	repo  *memRepo
	users *fakeUsers
	cache *memCache
	live  *fakeLocator
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		repo: newMemRepo(),
		users: &fakeUsers{
			users: map[string]*models.User{
				"sender1":  {ID: "sender1", Email: "asha@example.com", Name: "Asha Kamat"},
				"carrier1": {ID: "carrier1", Email: "ravi@example.com", Name: "Ravi Naik"},
				"carrier2": {ID: "carrier2", Email: "meera@example.com", Name: "Meera Shet"},
			},
			approved: map[string]bool{"carrier1": true, "carrier2": true},
		},
		cache: &memCache{},
		live:  &fakeLocator{},
		now:   time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	e.svc = NewService(e.repo, stubPricing{}, e.users, e.live, e.cache, email.NopNotifier{})
	e.svc.clock = func() time.Time { return e.now }
	return e
}

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

func validCreateRequest() *models.CreateDeliveryRequest {
	return &models.CreateDeliveryRequest{
		PickupAddress:  "18 June Road, Panaji",
		PickupLat:      15.4909,
		PickupLng:      73.8278,
		DropoffAddress: "Station Road, Margao",
		DropoffLat:     15.2832,
		DropoffLng:     73.9685,
		ParcelCategory: models.CategoryDocuments,
		WeightKg:       0.5,
		DeclaredValue:  500,
		ParcelPhotos:   []string{"photos/parcel1.jpg"},
		Timing:         models.TimingWithin2H,
	}
}

func (e *env) mustCreate(t *testing.T) *models.CreateDeliveryResponse {
	t.Helper()
	resp, err := e.svc.Create(context.Background(), "sender1", validCreateRequest())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return resp
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)

	d := resp.Delivery
	if d.Status != models.StatusPosted {
		t.Errorf("status = %s, want posted", d.Status)
	}
	if d.CarrierID != nil {
		t.Error("posted delivery must have no carrier")
	}
	if d.DistanceKm != 5.2 || d.PriceRs != 46 {
		t.Errorf("distance/price = %v/%v, want 5.2/46", d.DistanceKm, d.PriceRs)
	}
	if len(resp.PickupOTP) != otp.CodeLength || len(resp.DeliveryOTP) != otp.CodeLength {
		t.Errorf("codes %q %q, want %d digits each", resp.PickupOTP, resp.DeliveryOTP, otp.CodeLength)
	}
	if d.PickupOTP.Hash == "" || d.PickupOTP.Hash == resp.PickupOTP {
		t.Error("pickup code must be stored hashed")
	}
	if code, _ := e.cache.DropOTP(context.Background(), d.ID); code != resp.DeliveryOTP {
		t.Error("drop-off code not parked in cache")
	}
}

func TestCreate_ScheduledNeedsTime(t *testing.T) {
	e := newEnv(t)
	req := validCreateRequest()
	req.Timing = models.TimingScheduled

	_, err := e.svc.Create(context.Background(), "sender1", req)
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Create() = %v, want ErrValidation", err)
	}
}

func TestCreate_InvalidCoordinate(t *testing.T) {
	e := newEnv(t)
	req := validCreateRequest()
	req.PickupLat = 91

	_, err := e.svc.Create(context.Background(), "sender1", req)
	if !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Errorf("Create() = %v, want ErrInvalidCoordinate", err)
	}
}

func TestAccept(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID

	d, err := e.svc.Accept(context.Background(), id, "carrier1")
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if d.Status != models.StatusMatched {
		t.Errorf("status = %s, want matched", d.Status)
	}
	if d.CarrierID == nil || *d.CarrierID != "carrier1" {
		t.Error("carrier not recorded")
	}
	if d.MatchedAt == nil {
		t.Error("matched_at not set")
	}
}

func TestAccept_RequiresApprovedKYC(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID
	e.users.users["carrier3"] = &models.User{ID: "carrier3", Email: "x@example.com", Name: "X"}

	_, err := e.svc.Accept(context.Background(), id, "carrier3")
	if !errors.Is(err, models.ErrKYCNotApproved) {
		t.Errorf("Accept() = %v, want ErrKYCNotApproved", err)
	}
}

func TestAccept_OwnDelivery(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID
	e.users.approved["sender1"] = true

	_, err := e.svc.Accept(context.Background(), id, "sender1")
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Accept() = %v, want ErrForbidden", err)
	}
}

// TestAccept_ConcurrentSingleWinner drives many carriers at one posted
// delivery and requires exactly one to win; everyone else must see a state
// conflict.
func TestAccept_ConcurrentSingleWinner(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID

	const n = 8
	for i := 0; i < n; i++ {
		cid := fmt.Sprintf("racer%d", i)
		e.users.users[cid] = &models.User{ID: cid, Email: cid + "@example.com", Name: "Racer"}
		e.users.approved[cid] = true
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.svc.Accept(context.Background(), id, fmt.Sprintf("racer%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrStateConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if conflicts != n-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, n-1)
	}

	d, _ := e.repo.FindByID(context.Background(), id)
	if d.Status != models.StatusMatched || d.CarrierID == nil {
		t.Error("delivery not left matched with a single carrier")
	}
}

func TestVerifyPickup(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	d, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP, ProofPhoto: "photos/handover.jpg"})
	if err != nil {
		t.Fatalf("VerifyPickup() error: %v", err)
	}
	if d.Status != models.StatusPickedUp {
		t.Errorf("status = %s, want picked_up", d.Status)
	}
	if d.PickedUpAt == nil {
		t.Error("picked_up_at not set")
	}
	if d.PickupPhoto == nil || *d.PickupPhoto != "photos/handover.jpg" {
		t.Error("proof photo not stored")
	}
}

func TestVerifyPickup_WrongCarrier(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	_, err := e.svc.VerifyPickup(context.Background(), id, "carrier2",
		&models.VerifyOTPRequest{Code: resp.PickupOTP})
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("VerifyPickup() = %v, want ErrForbidden", err)
	}
}

func TestVerifyDelivery_BeforePickup(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	// The drop-off code is correct but the parcel was never picked up.
	_, err := e.svc.VerifyDelivery(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.DeliveryOTP})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Errorf("VerifyDelivery() = %v, want ErrStateConflict", err)
	}
}

func TestVerifyPickup_ThreeMismatchesDispute(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	wrong := "0000"
	if wrong == resp.PickupOTP {
		wrong = "0001"
	}

	for i := 1; i <= 2; i++ {
		_, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
			&models.VerifyOTPRequest{Code: wrong})
		if !errors.Is(err, otp.ErrMismatch) {
			t.Fatalf("attempt %d: got %v, want ErrMismatch", i, err)
		}
	}
	// Still matched after two failures.
	if d, _ := e.repo.FindByID(context.Background(), id); d.Status != models.StatusMatched {
		t.Fatalf("status after 2 mismatches = %s, want matched", d.Status)
	}

	_, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: wrong})
	if !errors.Is(err, models.ErrDisputeFlagged) {
		t.Fatalf("attempt 3: got %v, want ErrDisputeFlagged", err)
	}

	d, _ := e.repo.FindByID(context.Background(), id)
	if d.Status != models.StatusDisputed {
		t.Errorf("status = %s, want disputed", d.Status)
	}
	if len(e.repo.disputes) != 1 {
		t.Fatalf("disputes = %d, want 1", len(e.repo.disputes))
	}
	if e.repo.disputes[0].RaisedBy != "system" {
		t.Errorf("dispute raised_by = %s, want system", e.repo.disputes[0].RaisedBy)
	}

	// The correct code no longer helps: the delivery is frozen for an admin.
	_, err = e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP})
	if !errors.Is(err, models.ErrDisputeFlagged) {
		t.Errorf("after dispute: got %v, want ErrDisputeFlagged", err)
	}
}

// disputeMissRepo simulates another instance moving the delivery between the
// mismatch read and the freeze, so the conditional disputed update misses.
type disputeMissRepo struct {
	*memRepo
}

func (r *disputeMissRepo) MarkDisputed(context.Context, string, models.DeliveryStatus) (bool, error) {
	return false, nil
}

func TestVerifyPickup_ThirdMismatchLosesFreezeRace(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	e.svc = NewService(&disputeMissRepo{memRepo: e.repo},
		stubPricing{}, e.users, e.live, e.cache, email.NopNotifier{})
	e.svc.clock = func() time.Time { return e.now }

	wrong := "0000"
	if wrong == resp.PickupOTP {
		wrong = "0001"
	}
	for i := 1; i <= 2; i++ {
		if _, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
			&models.VerifyOTPRequest{Code: wrong}); !errors.Is(err, otp.ErrMismatch) {
			t.Fatalf("attempt %d: got %v, want ErrMismatch", i, err)
		}
	}

	_, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: wrong})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("attempt 3 with missed freeze: got %v, want ErrStateConflict", err)
	}
	if len(e.repo.disputes) != 0 {
		t.Errorf("disputes = %d, want none when the freeze did not apply", len(e.repo.disputes))
	}
}

func TestVerifyDelivery_FullHappyPathAndReplay(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID

	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP}); err != nil {
		t.Fatal(err)
	}

	d, err := e.svc.VerifyDelivery(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.DeliveryOTP})
	if err != nil {
		t.Fatalf("VerifyDelivery() error: %v", err)
	}
	if d.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", d.Status)
	}

	// Replaying the spent code must not re-complete anything.
	_, err = e.svc.VerifyDelivery(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.DeliveryOTP})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Errorf("replay = %v, want ErrStateConflict", err)
	}
}

func TestVerifyPickup_ExpiredCode(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	e.advance(otp.TTL + time.Minute)
	_, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP})
	if !errors.Is(err, otp.ErrExpired) {
		t.Errorf("VerifyPickup() = %v, want ErrExpired", err)
	}
}

func TestCancel_Posted(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID

	d, err := e.svc.Cancel(context.Background(), id, "sender1")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if d.Status != models.StatusCancelled || d.CancelledAt == nil {
		t.Errorf("status = %s, want cancelled with timestamp", d.Status)
	}
}

func TestCancel_PostedByStranger(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID

	_, err := e.svc.Cancel(context.Background(), id, "carrier1")
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Cancel() = %v, want ErrForbidden", err)
	}
}

func TestCancel_MatchedReturnsToPool(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	d, err := e.svc.Cancel(context.Background(), id, "carrier1")
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if d.Status != models.StatusPosted {
		t.Errorf("status = %s, want posted", d.Status)
	}
	if d.CarrierID != nil || d.MatchedAt != nil {
		t.Error("carrier assignment not cleared on rebroadcast")
	}

	// Another carrier can pick it up again.
	if _, err := e.svc.Accept(context.Background(), id, "carrier2"); err != nil {
		t.Errorf("re-accept after rebroadcast: %v", err)
	}
}

func TestCancel_PickedUpRejected(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP}); err != nil {
		t.Fatal(err)
	}

	_, err := e.svc.Cancel(context.Background(), id, "sender1")
	if !errors.Is(err, models.ErrStateConflict) {
		t.Errorf("Cancel() = %v, want ErrStateConflict", err)
	}
}

func TestOpenDispute_CarrierAfterPickup(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP}); err != nil {
		t.Fatal(err)
	}

	if err := e.svc.OpenDispute(context.Background(), id, "carrier1", "recipient unreachable"); err != nil {
		t.Fatalf("OpenDispute() error: %v", err)
	}
	d, _ := e.repo.FindByID(context.Background(), id)
	if d.Status != models.StatusDisputed {
		t.Errorf("status = %s, want disputed", d.Status)
	}
	if len(e.repo.disputes) != 1 || e.repo.disputes[0].RaisedBy != "carrier1" {
		t.Error("dispute record not created for carrier")
	}
}

func TestOpenDispute_StrangerForbidden(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	err := e.svc.OpenDispute(context.Background(), id, "carrier2", "not my delivery")
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("OpenDispute() = %v, want ErrForbidden", err)
	}
}

func TestListNearby(t *testing.T) {
	e := newEnv(t)
	e.mustCreate(t) // pickup in Panaji

	far := validCreateRequest()
	far.PickupLat, far.PickupLng = 19.0760, 72.8777 // Mumbai
	if _, err := e.svc.Create(context.Background(), "sender1", far); err != nil {
		t.Fatal(err)
	}

	items, err := e.svc.ListNearby(context.Background(), "carrier1",
		geo.Point{Lat: 15.4989, Lng: 73.8243}, 10)
	if err != nil {
		t.Fatalf("ListNearby() error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("nearby = %d deliveries, want 1 (Mumbai pickup filtered out)", len(items))
	}
	if items[0].DistanceFromCarrierKm > 10 {
		t.Errorf("distance annotation %v exceeds radius", items[0].DistanceFromCarrierKm)
	}
}

func TestListNearby_UnapprovedCarrier(t *testing.T) {
	e := newEnv(t)
	e.users.users["newbie"] = &models.User{ID: "newbie", Email: "n@example.com", Name: "N"}

	_, err := e.svc.ListNearby(context.Background(), "newbie", geo.Point{Lat: 15.5, Lng: 73.8}, 10)
	if !errors.Is(err, models.ErrKYCNotApproved) {
		t.Errorf("ListNearby() = %v, want ErrKYCNotApproved", err)
	}
}

func TestPublicTracking(t *testing.T) {
	e := newEnv(t)
	resp := e.mustCreate(t)
	id := resp.Delivery.ID

	// Posted: names only, no code, no position.
	view, err := e.svc.PublicTracking(context.Background(), id)
	if err != nil {
		t.Fatalf("PublicTracking() error: %v", err)
	}
	if view.SenderFirstName != "Asha" {
		t.Errorf("sender first name = %q, want Asha", view.SenderFirstName)
	}
	if view.DeliveryOTP != "" || view.LiveLat != nil {
		t.Error("posted view must not carry code or position")
	}

	// Picked up: drop-off code, live position, ETA toward the drop-off.
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.VerifyPickup(context.Background(), id, "carrier1",
		&models.VerifyOTPRequest{Code: resp.PickupOTP}); err != nil {
		t.Fatal(err)
	}
	e.live.lat, e.live.lng, e.live.ok = 15.40, 73.90, true

	view, err = e.svc.PublicTracking(context.Background(), id)
	if err != nil {
		t.Fatalf("PublicTracking() error: %v", err)
	}
	if view.DeliveryOTP != resp.DeliveryOTP {
		t.Errorf("drop-off code = %q, want %q", view.DeliveryOTP, resp.DeliveryOTP)
	}
	if view.CarrierFirstName != "Ravi" {
		t.Errorf("carrier first name = %q, want Ravi", view.CarrierFirstName)
	}
	if view.LiveLat == nil || view.ETAMinutes == nil || *view.ETAMinutes <= 0 {
		t.Error("active view missing live position or ETA")
	}
}

func TestSweepTimeouts(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID
	if _, err := e.svc.Accept(context.Background(), id, "carrier1"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// Under 20 minutes: nothing happens.
	e.advance(15 * time.Minute)
	if err := e.svc.SweepTimeouts(ctx, e.now); err != nil {
		t.Fatal(err)
	}
	if d, _ := e.repo.FindByID(ctx, id); d.Status != models.StatusMatched || d.ReminderSent {
		t.Fatal("sweep acted before the reminder threshold")
	}

	// 20-30 minutes: one reminder, still matched, idempotent.
	e.advance(7 * time.Minute)
	if err := e.svc.SweepTimeouts(ctx, e.now); err != nil {
		t.Fatal(err)
	}
	d, _ := e.repo.FindByID(ctx, id)
	if d.Status != models.StatusMatched || !d.ReminderSent {
		t.Fatal("reminder not recorded at 22 minutes")
	}
	if err := e.svc.SweepTimeouts(ctx, e.now); err != nil {
		t.Fatal(err)
	}

	// Past 30 minutes: back to the open pool with the carrier cleared.
	e.advance(10 * time.Minute)
	if err := e.svc.SweepTimeouts(ctx, e.now); err != nil {
		t.Fatal(err)
	}
	d, _ = e.repo.FindByID(ctx, id)
	if d.Status != models.StatusPosted {
		t.Errorf("status = %s, want posted after rebroadcast", d.Status)
	}
	if d.CarrierID != nil {
		t.Error("carrier not cleared on rebroadcast")
	}
}

func TestGet_PartyOnly(t *testing.T) {
	e := newEnv(t)
	id := e.mustCreate(t).Delivery.ID

	if _, err := e.svc.Get(context.Background(), id, "sender1", models.RoleSender); err != nil {
		t.Errorf("sender Get() = %v", err)
	}
	if _, err := e.svc.Get(context.Background(), id, "carrier2", models.RoleCarrier); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger Get() = %v, want ErrForbidden", err)
	}
	if _, err := e.svc.Get(context.Background(), id, "admin9", models.RoleAdmin); err != nil {
		t.Errorf("admin Get() = %v", err)
	}
}
