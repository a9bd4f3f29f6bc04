package pricing

import (
	"context"
	"fmt"
	"math"

	"crowdship/internal/models"
	"crowdship/pkg/geo"
)

// ServiceInterface exposes fare computation and rate-card administration.
type ServiceInterface interface {
	Estimate(ctx context.Context, pickup, dropoff geo.Point, weightKg float64, timing string) (distanceKm, price float64, err error)
	ListConfig(ctx context.Context) ([]models.ConfigItem, error)
	UpdateConfig(ctx context.Context, key string, value float64) error
}

type Service struct {
	repo RepositoryInterface
}

func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// Quote computes the delivery price from the rate card. Pure and
// deterministic: same card and inputs always produce the same price.
//
// Short trips get flat fees so the per-km formula cannot produce absurdly
// low fares; the formula applies from 2 km where per-km cost dominates.
// Multipliers are independent and multiplicative, weight before timing, and
// rounding happens exactly once at the end.
func Quote(card models.RateCard, distanceKm, weightKg float64, timing string) float64 {
	var base float64
	switch {
	case distanceKm < 0.5:
		base = card.FlatFeeUnder05Km
	case distanceKm < 1.0:
		base = card.FlatFeeUnder1Km
	case distanceKm < 2.0:
		base = card.FlatFeeUnder2Km
	default:
		base = card.BaseFare + card.PerKmRate*distanceKm
	}

	price := base
	if weightKg >= 2.0 && weightKg <= 5.0 {
		price *= card.WeightMultiplier
	}
	if timing == models.TimingASAP {
		price *= card.ASAPMultiplier
	}

	return math.Round(price)
}

// Estimate validates the coordinates, measures the great-circle distance and
// prices the trip against the current rate card.
func (s *Service) Estimate(ctx context.Context, pickup, dropoff geo.Point, weightKg float64, timing string) (float64, float64, error) {
	if err := geo.Validate(pickup); err != nil {
		return 0, 0, err
	}
	if err := geo.Validate(dropoff); err != nil {
		return 0, 0, err
	}

	card, err := s.rateCard(ctx)
	if err != nil {
		return 0, 0, err
	}

	distance := geo.DistanceKm(pickup, dropoff)
	return distance, Quote(card, distance, weightKg, timing), nil
}

func (s *Service) ListConfig(ctx context.Context) ([]models.ConfigItem, error) {
	card, err := s.rateCard(ctx)
	if err != nil {
		return nil, err
	}
	return []models.ConfigItem{
		{Key: "base_fare", Value: card.BaseFare},
		{Key: "per_km_rate", Value: card.PerKmRate},
		{Key: "flat_fee_05km", Value: card.FlatFeeUnder05Km},
		{Key: "flat_fee_1km", Value: card.FlatFeeUnder1Km},
		{Key: "flat_fee_2km", Value: card.FlatFeeUnder2Km},
		{Key: "weight_multiplier_2_5kg", Value: card.WeightMultiplier},
		{Key: "time_multiplier_asap", Value: card.ASAPMultiplier},
	}, nil
}

func (s *Service) UpdateConfig(ctx context.Context, key string, value float64) error {
	if err := s.repo.UpsertConfig(ctx, key, value); err != nil {
		return fmt.Errorf("service.UpdateConfig: %w", err)
	}
	return nil
}

// rateCard merges stored overrides over the defaults.
func (s *Service) rateCard(ctx context.Context) (models.RateCard, error) {
	card := models.DefaultRateCard()

	items, err := s.repo.ListConfig(ctx)
	if err != nil {
		return card, fmt.Errorf("service.rateCard: %w", err)
	}
	for _, it := range items {
		switch it.Key {
		case "base_fare":
			card.BaseFare = it.Value
		case "per_km_rate":
			card.PerKmRate = it.Value
		case "flat_fee_05km":
			card.FlatFeeUnder05Km = it.Value
		case "flat_fee_1km":
			card.FlatFeeUnder1Km = it.Value
		case "flat_fee_2km":
			card.FlatFeeUnder2Km = it.Value
		case "weight_multiplier_2_5kg":
			card.WeightMultiplier = it.Value
		case "time_multiplier_asap":
			card.ASAPMultiplier = it.Value
		}
	}
	return card, nil
}
