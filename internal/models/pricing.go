package models

// RateCard holds the tunable pricing parameters. Defaults mirror the launch
// tariff; individual keys can be overridden by admins through the config
// endpoints. Prices are in rupees.
type RateCard struct {
	BaseFare         float64 `json:"base_fare"`
	PerKmRate        float64 `json:"per_km_rate"`
	FlatFeeUnder05Km float64 `json:"flat_fee_05km"`
	FlatFeeUnder1Km  float64 `json:"flat_fee_1km"`
	FlatFeeUnder2Km  float64 `json:"flat_fee_2km"`
	WeightMultiplier float64 `json:"weight_multiplier_2_5kg"`
	ASAPMultiplier   float64 `json:"time_multiplier_asap"`
}

// DefaultRateCard returns the launch tariff.
func DefaultRateCard() RateCard {
	return RateCard{
		BaseFare:         25,
		PerKmRate:        4,
		FlatFeeUnder05Km: 20,
		FlatFeeUnder1Km:  25,
		FlatFeeUnder2Km:  30,
		WeightMultiplier: 1.2,
		ASAPMultiplier:   1.15,
	}
}

// ConfigItem is one admin-tunable pricing key.
type ConfigItem struct {
	Key   string  `json:"key" db:"key"`
	Value float64 `json:"value" db:"value"`
}

// EstimateRequest prices a trip without creating a delivery.
type EstimateRequest struct {
	PickupLat  float64 `json:"pickup_lat"`
	PickupLng  float64 `json:"pickup_lng"`
	DropoffLat float64 `json:"dropoff_lat"`
	DropoffLng float64 `json:"dropoff_lng"`
	WeightKg   float64 `json:"weight_kg" validate:"required,gte=0.1,lte=5"`
	Timing     string  `json:"timing_preference" validate:"required,oneof=asap within_2h within_4h scheduled"`
}

// EstimateResponse is the quote for an EstimateRequest.
type EstimateResponse struct {
	DistanceKm float64 `json:"distance_km"`
	PriceRs    float64 `json:"price_rs"`
}

// UpdateConfigRequest upserts a pricing key.
type UpdateConfigRequest struct {
	Key   string  `json:"key" validate:"required,oneof=base_fare per_km_rate flat_fee_05km flat_fee_1km flat_fee_2km weight_multiplier_2_5kg time_multiplier_asap"`
	Value float64 `json:"value" validate:"required,gt=0"`
}
