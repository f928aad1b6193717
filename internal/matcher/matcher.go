package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/eta"
	"github.com/example/rider-core/internal/geo"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/observability"
)

var ErrNoDriver = errors.New("no driver available")

// Service picks the best nearby driver for a pickup after a simulated
// search delay.
type Service struct {
	Pool           geo.Pool
	Clock          clockwork.Clock
	TopN           int
	DriverSpeedKmh float64
	Delay          time.Duration
	Jitter         time.Duration
	Logger         *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

type scored struct {
	d      models.Driver
	etaSec float64
	cost   float64
}

// FindDriver waits the configured delay and returns the lowest-cost
// candidate. It returns ctx.Err() as soon as ctx is done.
func (s *Service) FindDriver(ctx context.Context, pickup models.Location) (models.DriverAssignment, error) {
	start := s.clock().Now()
	at := pickup.Coord()

	cands, err := s.Pool.Nearby(ctx, at, s.topN())
	if err != nil {
		observability.MatchesTotal.WithLabelValues("error").Inc()
		return models.DriverAssignment{}, fmt.Errorf("driver pool lookup: %w", err)
	}
	best, ok := s.choose(at, cands)

	select {
	case <-ctx.Done():
		observability.MatchesTotal.WithLabelValues("cancelled").Inc()
		return models.DriverAssignment{}, ctx.Err()
	case <-s.clock().After(s.wait()):
	}

	if !ok {
		observability.MatchesTotal.WithLabelValues("no_driver").Inc()
		return models.DriverAssignment{}, ErrNoDriver
	}
	observability.MatchesTotal.WithLabelValues("matched").Inc()
	observability.MatchLatency.Observe(s.clock().Since(start).Seconds())

	km := geo.Haversine(at.Lat, at.Lon, best.d.Loc.Lat, best.d.Loc.Lon) / 1000
	a := models.DriverAssignment{
		DriverID:      best.d.ID,
		Name:          best.d.Name,
		Rating:        best.d.Rating,
		VehicleModel:  best.d.VehicleModel,
		VehicleNumber: best.d.VehicleNumber,
		PhotoRef:      best.d.PhotoRef,
		ETAMinutes:    int(math.Max(1, math.Ceil(best.etaSec/60))),
		DistanceKm:    math.Round(km*10) / 10,
		Location:      best.d.Loc,
	}
	if s.Logger != nil {
		s.Logger.Info("driver matched",
			zap.String("driver_id", a.DriverID),
			zap.Int("eta_min", a.ETAMinutes),
			zap.Int("candidates", len(cands)))
	}
	return a, nil
}

// choose scores candidates by cost = eta + 30*(5 - rating); lower is better.
func (s *Service) choose(at models.Coord, cands []models.Driver) (scored, bool) {
	list := make([]scored, 0, len(cands))
	for _, d := range cands {
		if !d.Online {
			continue
		}
		etaSec := eta.EstimateSeconds(d.Loc, at, s.DriverSpeedKmh)
		cost := etaSec + 30.0*(5.0-d.Rating)
		list = append(list, scored{d, etaSec, cost})
	}
	if len(list) == 0 {
		return scored{}, false
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].cost < list[j].cost })
	return list[0], true
}

func (s *Service) wait() time.Duration {
	d := s.Delay
	if s.Jitter > 0 {
		s.rngMu.Lock()
		if s.rng == nil {
			s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d += time.Duration(s.rng.Int63n(int64(s.Jitter)))
		s.rngMu.Unlock()
	}
	return d
}

func (s *Service) topN() int {
	if s.TopN <= 0 {
		return 10
	}
	return s.TopN
}

func (s *Service) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}
