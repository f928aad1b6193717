package fare

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/example/rider-core/internal/config"
	"github.com/example/rider-core/internal/models"
)

const (
	ClassBike   = "bike"
	ClassScooty = "scooty"
	ClassAuto   = "auto"
	ClassCab    = "cab"
	ClassCabAC  = "cabac"
)

var (
	ErrUnknownVehicleClass = errors.New("unknown vehicle class")
	ErrInvalidTrip         = errors.New("distance and duration must be finite and non-negative")
)

// RateCard prices one vehicle class. Amounts are whole currency units.
type RateCard struct {
	Class     string
	Base      int64
	PerKm     float64
	PerMinute float64
}

// Estimator is a pure fare calculator over a fixed set of rate cards.
type Estimator struct {
	currency string
	cards    map[string]RateCard
}

func NewEstimator(currency string, cards ...RateCard) *Estimator {
	m := make(map[string]RateCard, len(cards))
	for _, c := range cards {
		m[c.Class] = c
	}
	return &Estimator{currency: currency, cards: m}
}

func FromConfig(cfg config.FareConfig) *Estimator {
	return NewEstimator(cfg.Currency,
		cardFrom(ClassBike, cfg.Bike),
		cardFrom(ClassScooty, cfg.Scooty),
		cardFrom(ClassAuto, cfg.Auto),
		cardFrom(ClassCab, cfg.Cab),
		cardFrom(ClassCabAC, cfg.CabAC),
	)
}

func cardFrom(class string, rc config.RateConfig) RateCard {
	return RateCard{Class: class, Base: rc.Base, PerKm: rc.PerKm, PerMinute: rc.PerMinute}
}

// Estimate prices a trip with the default bike rate card.
func (e *Estimator) Estimate(distanceKm, durationMin float64) (models.FareEstimate, error) {
	return e.EstimateFor(ClassBike, distanceKm, durationMin)
}

func (e *Estimator) EstimateFor(class string, distanceKm, durationMin float64) (models.FareEstimate, error) {
	card, ok := e.cards[class]
	if !ok {
		return models.FareEstimate{}, fmt.Errorf("%w: %q", ErrUnknownVehicleClass, class)
	}
	if !validAmount(distanceKm) || !validAmount(durationMin) {
		return models.FareEstimate{}, fmt.Errorf("%w: distance=%v duration=%v", ErrInvalidTrip, distanceKm, durationMin)
	}
	distanceFare := int64(math.Round(card.PerKm * distanceKm))
	timeFare := int64(math.Round(card.PerMinute * durationMin))
	return models.FareEstimate{
		VehicleClass: card.Class,
		DistanceKm:   distanceKm,
		DurationMin:  durationMin,
		Distance:     FormatDistance(distanceKm),
		Duration:     FormatDuration(durationMin),
		BaseFare:     card.Base,
		DistanceFare: distanceFare,
		TimeFare:     timeFare,
		Fare:         card.Base + distanceFare + timeFare,
		Currency:     e.currency,
	}, nil
}

// Classes lists the configured vehicle classes in name order.
func (e *Estimator) Classes() []string {
	out := make([]string, 0, len(e.cards))
	for k := range e.cards {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
