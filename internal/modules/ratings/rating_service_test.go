package ratings

import (
	"context"
	"errors"
	"testing"

	"crowdship/internal/models"
)

type memRepo struct {
	refs    map[string]*DeliveryRef
	ratings []models.Rating
}

func (r *memRepo) InsertRating(_ context.Context, rt *models.Rating) (bool, error) {
	for _, existing := range r.ratings {
		if existing.DeliveryID == rt.DeliveryID && existing.RaterID == rt.RaterID {
			return false, nil
		}
	}
	r.ratings = append(r.ratings, *rt)
	return true, nil
}

func (r *memRepo) ListForRatee(_ context.Context, rateeID string, limit, offset int) ([]models.Rating, error) {
	var out []models.Rating
	skipped := 0
	for _, rt := range r.ratings {
		if rt.RateeID != rateeID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) < limit {
			out = append(out, rt)
		}
	}
	return out, nil
}

func (r *memRepo) AverageForRatee(_ context.Context, rateeID string) (float64, int, error) {
	sum, n := 0, 0
	for _, rt := range r.ratings {
		if rt.RateeID == rateeID {
			sum += rt.Stars
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

func (r *memRepo) GetDeliveryRef(_ context.Context, id string) (*DeliveryRef, error) {
	ref, ok := r.refs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return ref, nil
}

func deliveredRef() *DeliveryRef {
	carrier := "c1"
	return &DeliveryRef{SenderID: "s1", CarrierID: &carrier, Status: models.StatusDelivered}
}

func TestCreateRating(t *testing.T) {
	repo := &memRepo{refs: map[string]*DeliveryRef{"d1": deliveredRef()}}
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.CreateRating(ctx, "s1", &models.CreateRatingRequest{DeliveryID: "d1", Stars: 5})
	if err != nil {
		t.Fatalf("CreateRating() error: %v", err)
	}
	if r.RateeID != "c1" {
		t.Errorf("ratee = %q, sender must rate the carrier", r.RateeID)
	}

	// The carrier rates back, independently.
	r, err = svc.CreateRating(ctx, "c1", &models.CreateRatingRequest{DeliveryID: "d1", Stars: 4})
	if err != nil {
		t.Fatalf("carrier CreateRating() error: %v", err)
	}
	if r.RateeID != "s1" {
		t.Errorf("ratee = %q, carrier must rate the sender", r.RateeID)
	}

	// Rating the same delivery twice is rejected.
	_, err = svc.CreateRating(ctx, "s1", &models.CreateRatingRequest{DeliveryID: "d1", Stars: 1})
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("second rating = %v, want ErrConflict", err)
	}
}

func TestCreateRating_Guards(t *testing.T) {
	carrier := "c1"
	repo := &memRepo{refs: map[string]*DeliveryRef{
		"delivered": deliveredRef(),
		"moving":    {SenderID: "s1", CarrierID: &carrier, Status: models.StatusPickedUp},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateRating(ctx, "s1", &models.CreateRatingRequest{DeliveryID: "moving", Stars: 5})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Errorf("rating before delivery = %v, want ErrStateConflict", err)
	}

	_, err = svc.CreateRating(ctx, "outsider", &models.CreateRatingRequest{DeliveryID: "delivered", Stars: 5})
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("outsider rating = %v, want ErrForbidden", err)
	}

	_, err = svc.CreateRating(ctx, "s1", &models.CreateRatingRequest{DeliveryID: "missing", Stars: 5})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown delivery = %v, want ErrNotFound", err)
	}
}

func TestSummary(t *testing.T) {
	repo := &memRepo{ratings: []models.Rating{
		{DeliveryID: "d1", RaterID: "s1", RateeID: "c1", Stars: 5},
		{DeliveryID: "d2", RaterID: "s2", RateeID: "c1", Stars: 4},
		{DeliveryID: "d3", RaterID: "s3", RateeID: "someone_else", Stars: 1},
	}}
	svc := NewService(repo)

	sum, err := svc.Summary(context.Background(), "c1", 1, listLimit)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if sum.RatingCount != 2 {
		t.Errorf("count = %d, want 2", sum.RatingCount)
	}
	if sum.AverageStars != 4.5 {
		t.Errorf("average = %v, want 4.5", sum.AverageStars)
	}
	if len(sum.Ratings) != 2 {
		t.Errorf("listed = %d, want 2", len(sum.Ratings))
	}

	// Paging narrows the listing but never the aggregate.
	page2, err := svc.Summary(context.Background(), "c1", 2, 1)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if page2.RatingCount != 2 || page2.AverageStars != 4.5 {
		t.Errorf("aggregate changed with paging: %+v", page2)
	}
	if len(page2.Ratings) != 1 || page2.Ratings[0].DeliveryID != "d2" {
		t.Errorf("page 2 = %+v, want just the second rating", page2.Ratings)
	}
}
