// Package geo provides great-circle distance computation and the arrival
// time estimate used to enrich provider responses.
package geo

import (
	"fmt"
	"math"

	"github.com/fixnow/dispatch/core/model"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// Average urban speed assumed when converting distance to travel time.
const avgSpeedKmh = 30.0

// DistanceKm computes the Haversine great-circle distance between two
// locations, rounded half-up to two decimal places.
func DistanceKm(a, b model.Location) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, fmt.Errorf("origin: %w", err)
	}
	if err := b.Validate(); err != nil {
		return 0, fmt.Errorf("destination: %w", err)
	}
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return round2(EarthRadiusKm * c), nil
}

// EstimateArrivalMinutes converts a distance into an arrival estimate
// assuming average urban driving speed, clamped to [1,120] minutes.
func EstimateArrivalMinutes(distanceKm float64) int {
	minutes := int(math.Ceil(distanceKm / avgSpeedKmh * 60))
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 120 {
		minutes = 120
	}
	return minutes
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
