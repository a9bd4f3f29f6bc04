package ratings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"crowdship/internal/models"

	"github.com/google/uuid"
)

const listLimit = 100

// RatingSummary is a user's public reputation.
type RatingSummary struct {
	UserID       string          `json:"user_id"`
	AverageStars float64         `json:"average_stars"`
	RatingCount  int             `json:"rating_count"`
	Ratings      []models.Rating `json:"ratings"`
}

type ServiceInterface interface {
	CreateRating(ctx context.Context, raterID string, req *models.CreateRatingRequest) (*models.Rating, error)
	Summary(ctx context.Context, userID string, page, limit int) (*RatingSummary, error)
}

type Service struct {
	repo  RepositoryInterface
	clock func() time.Time
}

func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// CreateRating lets one party of a delivered delivery rate the other, once.
// The counterparty is derived, not supplied, so a rating can never target an
// outsider.
func (s *Service) CreateRating(ctx context.Context, raterID string, req *models.CreateRatingRequest) (*models.Rating, error) {
	ref, err := s.repo.GetDeliveryRef(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.StatusDelivered {
		return nil, fmt.Errorf("%w: only delivered deliveries can be rated", models.ErrStateConflict)
	}
	if ref.CarrierID == nil {
		return nil, fmt.Errorf("%w: delivery has no carrier", models.ErrStateConflict)
	}

	var rateeID string
	switch raterID {
	case ref.SenderID:
		rateeID = *ref.CarrierID
	case *ref.CarrierID:
		rateeID = ref.SenderID
	default:
		return nil, models.ErrForbidden
	}

	r := &models.Rating{
		ID:         "rating_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		DeliveryID: req.DeliveryID,
		RaterID:    raterID,
		RateeID:    rateeID,
		Stars:      req.Stars,
		ReviewText: req.ReviewText,
		CreatedAt:  s.clock(),
	}
	inserted, err := s.repo.InsertRating(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("service.CreateRating: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("%w: delivery already rated", models.ErrConflict)
	}
	return r, nil
}

// Summary reports the aggregate reputation plus one page of ratings; the
// average and count always cover everything.
func (s *Service) Summary(ctx context.Context, userID string, page, limit int) (*RatingSummary, error) {
	avg, count, err := s.repo.AverageForRatee(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.Summary: %w", err)
	}
	if limit < 1 || limit > listLimit {
		limit = listLimit
	}
	if page < 1 {
		page = 1
	}
	list, err := s.repo.ListForRatee(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("service.Summary: %w", err)
	}
	return &RatingSummary{
		UserID:       userID,
		AverageStars: math.Round(avg*10) / 10,
		RatingCount:  count,
		Ratings:      list,
	}, nil
}
