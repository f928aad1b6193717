package eta

import (
	"math"

	"github.com/example/rider-core/internal/geo"
	"github.com/example/rider-core/internal/models"
)

// DefaultSpeedKmh is the average city speed assumed when no routing engine
// is available.
const DefaultSpeedKmh = 25.0

// Trip is a mock distance/duration pair for a pickup/dropoff pair.
type Trip struct {
	DistanceKm  float64
	DurationMin float64
}

// Estimator derives trip figures from straight-line distance and a constant
// average speed. In prod use a routing engine.
type Estimator struct {
	SpeedKmh float64
}

func NewEstimator(speedKmh float64) *Estimator {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return &Estimator{SpeedKmh: speedKmh}
}

// Trip returns the distance rounded to 100 m and the whole-minute duration at
// the estimator's speed. Identical points yield a zero trip.
func (e *Estimator) Trip(from, to models.Coord) Trip {
	km := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / 1000
	km = math.Round(km*10) / 10
	return Trip{DistanceKm: km, DurationMin: float64(MinutesFor(km, e.SpeedKmh))}
}

// MinutesFor converts a distance to whole minutes at speedKmh.
func MinutesFor(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return int(math.Round(distanceKm / speedKmh * 60))
}

// EstimateSeconds is the naive driver approach time: distance / speed.
func EstimateSeconds(from, to models.Coord, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	d := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return d / (speedKmh * 1000 / 3600)
}

// EstimateMinutes rounds EstimateSeconds up to whole minutes, never below one
// so an assigned driver always shows a non-zero ETA.
func EstimateMinutes(from, to models.Coord, speedKmh float64) int {
	m := int(math.Ceil(EstimateSeconds(from, to, speedKmh) / 60))
	if m < 1 {
		m = 1
	}
	return m
}
