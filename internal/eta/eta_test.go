package eta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rider-core/internal/models"
)

func TestMinutesFor(t *testing.T) {
	assert.Equal(t, 24, MinutesFor(10, 25))
	assert.Equal(t, 0, MinutesFor(0, 25))
	assert.Equal(t, 60, MinutesFor(25, 0), "non-positive speed falls back to default")
}

func TestTripSamePoint(t *testing.T) {
	e := NewEstimator(0)
	p := models.Coord{Lat: 12.9716, Lon: 77.5946}
	trip := e.Trip(p, p)
	assert.Zero(t, trip.DistanceKm)
	assert.Zero(t, trip.DurationMin)
}

func TestTripRoundsDistance(t *testing.T) {
	e := NewEstimator(25)
	// roughly 11.1 km due north
	trip := e.Trip(models.Coord{Lat: 12.0, Lon: 77.0}, models.Coord{Lat: 12.1, Lon: 77.0})
	require.InDelta(t, 11.1, trip.DistanceKm, 0.05)
	assert.Equal(t, float64(MinutesFor(trip.DistanceKm, 25)), trip.DurationMin)
}

func TestEstimateMinutesAtLeastOne(t *testing.T) {
	p := models.Coord{Lat: 1, Lon: 1}
	assert.Equal(t, 1, EstimateMinutes(p, p, 25))
}

func TestEstimateSecondsScalesWithSpeed(t *testing.T) {
	a := models.Coord{Lat: 0, Lon: 0}
	b := models.Coord{Lat: 0, Lon: 0.1}
	slow := EstimateSeconds(a, b, 10)
	fast := EstimateSeconds(a, b, 20)
	assert.InDelta(t, slow/2, fast, 0.001)
}
