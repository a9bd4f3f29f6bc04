package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"crowdship/internal/models"
	"crowdship/pkg/geo"
)

func TestQuote_DistanceTiers(t *testing.T) {
	card := models.DefaultRateCard()

	tests := []struct {
		name       string
		distanceKm float64
		want       float64
	}{
		{name: "short hop flat fee", distanceKm: 0.3, want: 20},
		{name: "exactly 0.5km moves to next tier", distanceKm: 0.5, want: 25},
		{name: "under 1km", distanceKm: 0.99, want: 25},
		{name: "exactly 1km moves to next tier", distanceKm: 1.0, want: 30},
		{name: "under 2km", distanceKm: 1.99, want: 30},
		{name: "exactly 2km uses formula not flat fee", distanceKm: 2.0, want: 33}, // 25 + 4*2
		{name: "long trip", distanceKm: 10.0, want: 65},                            // 25 + 4*10
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quote(card, tt.distanceKm, 0.5, models.TimingWithin2H)
			if got != tt.want {
				t.Errorf("Quote(%v km) = %v, want %v", tt.distanceKm, got, tt.want)
			}
		})
	}
}

func TestQuote_Multipliers(t *testing.T) {
	card := models.DefaultRateCard()

	tests := []struct {
		name     string
		weightKg float64
		timing   string
		want     float64
	}{
		// 10 km base = 25 + 4*10 = 65.
		{name: "no multipliers", weightKg: 1.0, timing: models.TimingWithin4H, want: 65},
		{name: "just under weight threshold", weightKg: 1.99, timing: models.TimingWithin4H, want: 65},
		{name: "weight threshold inclusive low", weightKg: 2.0, timing: models.TimingWithin4H, want: 78},  // 65*1.2
		{name: "weight threshold inclusive high", weightKg: 5.0, timing: models.TimingWithin4H, want: 78},
		{name: "asap only", weightKg: 1.0, timing: models.TimingASAP, want: 75},                           // round(65*1.15)=74.75
		{name: "weight then asap", weightKg: 3.0, timing: models.TimingASAP, want: 90},                    // round(65*1.2*1.15)=89.7
		{name: "scheduled gets no timing multiplier", weightKg: 1.0, timing: models.TimingScheduled, want: 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quote(card, 10.0, tt.weightKg, tt.timing)
			if got != tt.want {
				t.Errorf("Quote(10km, %vkg, %s) = %v, want %v", tt.weightKg, tt.timing, got, tt.want)
			}
		})
	}
}

func TestQuote_FloorAndDeterminism(t *testing.T) {
	card := models.DefaultRateCard()

	// Minimum possible fare is the short-hop flat fee.
	for _, d := range []float64{0, 0.1, 0.49, 0.5, 1.5, 2, 7, 40} {
		if got := Quote(card, d, 0.5, models.TimingWithin2H); got < 20 {
			t.Errorf("Quote(%v km) = %v, below the 20 floor", d, got)
		}
	}

	// Same inputs, same output, no hidden state.
	for i := 0; i < 5; i++ {
		if a, b := Quote(card, 7.3, 2.5, models.TimingASAP), Quote(card, 7.3, 2.5, models.TimingASAP); a != b {
			t.Fatalf("Quote is not deterministic: %v vs %v", a, b)
		}
	}
}

// fakeRepo serves rate-card overrides from memory.
type fakeRepo struct {
	items []models.ConfigItem
	err   error
}

func (f *fakeRepo) ListConfig(context.Context) ([]models.ConfigItem, error) {
	return f.items, f.err
}

func (f *fakeRepo) UpsertConfig(_ context.Context, key string, value float64) error {
	f.items = append(f.items, models.ConfigItem{Key: key, Value: value})
	return f.err
}

func TestEstimate_EndToEnd(t *testing.T) {
	svc := NewService(&fakeRepo{})

	// Panaji to Margao: ~27-28 km, so the per-km formula applies and neither
	// multiplier does (0.5 kg, within_2h).
	pickup := geo.Point{Lat: 15.4909, Lng: 73.8278}
	dropoff := geo.Point{Lat: 15.2832, Lng: 73.9685}

	distance, price, err := svc.Estimate(context.Background(), pickup, dropoff, 0.5, models.TimingWithin2H)
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}

	if distance < 2 {
		t.Fatalf("expected a formula-tier distance, got %v km", distance)
	}
	want := math.Round(25 + 4*distance)
	if price != want {
		t.Errorf("price = %v, want round(25 + 4*%v) = %v", price, distance, want)
	}
}

func TestEstimate_InvalidCoordinate(t *testing.T) {
	svc := NewService(&fakeRepo{})

	_, _, err := svc.Estimate(context.Background(),
		geo.Point{Lat: 95, Lng: 73}, geo.Point{Lat: 15.28, Lng: 73.97},
		1.0, models.TimingASAP)
	if !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Errorf("Estimate() = %v, want ErrInvalidCoordinate", err)
	}
}

func TestEstimate_AppliesOverrides(t *testing.T) {
	svc := NewService(&fakeRepo{items: []models.ConfigItem{
		{Key: "per_km_rate", Value: 6},
		{Key: "base_fare", Value: 30},
	}})

	distance, price, err := svc.Estimate(context.Background(),
		geo.Point{Lat: 15.4909, Lng: 73.8278}, geo.Point{Lat: 15.2832, Lng: 73.9685},
		0.5, models.TimingWithin2H)
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}
	want := math.Round(30 + 6*distance)
	if price != want {
		t.Errorf("price = %v, want %v with overridden card", price, want)
	}
}
