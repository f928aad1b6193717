package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/rider-core/internal/models"
)

// Pool is the minimal interface the matcher needs to discover drivers.
type Pool interface {
	Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error)
}

// Index is an in-process driver pool.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
	now     func() time.Time
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver), now: time.Now}
}

func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = g.now()
	g.drivers[d.ID] = d
}

func (g *Index) Remove(id string) {
	g.mu.Lock()
	delete(g.drivers, id)
	g.mu.Unlock()
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.drivers)
}

// Nearby returns up to limit online drivers ordered by distance.
// naive scan; in prod use geo-hash or H3
func (g *Index) Nearby(_ context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Online {
			continue
		}
		arr = append(arr, pair{d, Haversine(at.Lat, at.Lon, d.Loc.Lat, d.Loc.Lon)})
	}
	// partial selection sort for top-N; ties broken by id so results are stable
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist ||
				(arr[j].dist == arr[minIdx].dist && arr[j].d.ID < arr[minIdx].d.ID) {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out, nil
}

const earthRadiusM = 6371000.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Offset moves a point by the given kilometres north and east.
func Offset(at models.Coord, northKm, eastKm float64) models.Coord {
	const kmPerDeg = earthRadiusM / 1000 * math.Pi / 180
	lat := at.Lat + northKm/kmPerDeg
	lon := at.Lon + eastKm/(kmPerDeg*math.Cos(at.Lat*math.Pi/180))
	return models.Coord{Lat: lat, Lon: lon}
}
