package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rider-core/internal/models"
)

func TestHaversineZero(t *testing.T) {
	assert.Zero(t, Haversine(0, 0, 0, 0))
}

func TestOffsetDistance(t *testing.T) {
	at := models.Coord{Lat: 12.9716, Lon: 77.5946}
	north := Offset(at, 0.8, 0)
	assert.InDelta(t, 800, Haversine(at.Lat, at.Lon, north.Lat, north.Lon), 1)
	east := Offset(at, 0, 1.2)
	assert.InDelta(t, 1200, Haversine(at.Lat, at.Lon, east.Lat, east.Lon), 1)
}

func TestIndexNearbyOrdersByDistanceAndSkipsOffline(t *testing.T) {
	idx := NewIndex()
	at := models.Coord{Lat: 12.9, Lon: 77.6}
	idx.Upsert(models.Driver{ID: "far", Loc: Offset(at, 3, 0), Online: true})
	idx.Upsert(models.Driver{ID: "near", Loc: Offset(at, 0.5, 0), Online: true})
	idx.Upsert(models.Driver{ID: "off", Loc: at, Online: false})

	got, err := idx.Nearby(context.Background(), at, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "far", got[1].ID)

	got, err = idx.Nearby(context.Background(), at, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
}

func TestIndexRemove(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(models.Driver{ID: "a", Online: true})
	require.Equal(t, 1, idx.Len())
	idx.Remove("a")
	assert.Zero(t, idx.Len())
}

func TestRosterPlacesDriversAroundPickup(t *testing.T) {
	at := models.Coord{Lat: 28.6139, Lon: 77.2090}
	got, err := NewRoster().Nearby(context.Background(), at, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Rajesh Kumar", got[0].Name)
	assert.InDelta(t, 800, Haversine(at.Lat, at.Lon, got[0].Loc.Lat, got[0].Loc.Lon), 1)
	assert.Equal(t, "Suresh Reddy", got[1].Name)
}

func TestMetaRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	in := models.Driver{ID: "d1", Name: "Arun Singh", Rating: 4.7, Online: true, VehicleModel: "Bajaj RE", VehicleNumber: "KA 03 EF 9012"}
	fields := MetaFields(in, ts)
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		m[k] = v.(string)
	}
	var out models.Driver
	applyMeta(&out, m)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Rating, out.Rating)
	assert.True(t, out.Online)
	assert.Equal(t, in.VehicleNumber, out.VehicleNumber)
	assert.Equal(t, ts, out.Updated)
}

type failingPool struct{ err error }

func (f failingPool) Nearby(context.Context, models.Coord, int) ([]models.Driver, error) {
	return nil, f.err
}

func TestChainFallsThroughEmptyAndFailingPools(t *testing.T) {
	at := models.Coord{Lat: 12.97, Lon: 77.59}
	boom := errors.New("redis down")

	ds, err := Chain{failingPool{boom}, NewIndex(), NewRoster()}.Nearby(context.Background(), at, 5)
	require.NoError(t, err)
	assert.Len(t, ds, 2)

	_, err = Chain{failingPool{boom}, NewIndex()}.Nearby(context.Background(), at, 5)
	assert.ErrorIs(t, err, boom)

	idx := NewIndex()
	idx.Upsert(models.Driver{ID: "live", Loc: at, Online: true})
	ds, err = Chain{idx, NewRoster()}.Nearby(context.Background(), at, 5)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "live", ds[0].ID)
}
