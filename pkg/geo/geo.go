// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"crowdship/internal/models"
)

const earthRadiusKm = 6371.0

// avgCarrierSpeedKmh is the assumed door-to-door speed used for rough ETAs
// on the public tracking page.
const avgCarrierSpeedKmh = 25.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Validate checks that the point lies on the globe.
func Validate(p Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return models.ErrInvalidCoordinate
	}
	return nil
}

// DistanceKm returns the great-circle distance in kilometres between two
// points using the haversine formula.
func DistanceKm(a, b Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETAMinutes estimates travel time for the given distance at the assumed
// average carrier speed.
func ETAMinutes(distanceKm float64) float64 {
	return distanceKm / avgCarrierSpeedKmh * 60
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
