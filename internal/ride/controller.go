package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/eta"
	"github.com/example/rider-core/internal/events"
	"github.com/example/rider-core/internal/matcher"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/notify"
	"github.com/example/rider-core/internal/observability"
)

const (
	reasonNoDriver      = "no driver available"
	reasonRiderCancel   = "cancelled by rider"
	defaultArrivalDelay = 5 * time.Second
	defaultTripDuration = 10 * time.Second
)

type Locations interface {
	Pickup() (models.Location, bool)
	Dropoff() (models.Location, bool)
}

type TripEstimator interface {
	Trip(from, to models.Coord) eta.Trip
}

type FareEstimator interface {
	EstimateFor(class string, distanceKm, durationMin float64) (models.FareEstimate, error)
}

type DriverMatcher interface {
	FindDriver(ctx context.Context, pickup models.Location) (models.DriverAssignment, error)
}

type History interface {
	Append(ctx context.Context, r models.Ride) error
}

type Deps struct {
	Locations Locations
	Trips     TripEstimator
	Fares     FareEstimator
	Matcher   DriverMatcher
	History   History
	Events    events.Publisher
	Clock     clockwork.Clock
	Logger    *zap.Logger

	ArrivalDelay time.Duration
	TripDuration time.Duration
}

// Controller owns one ride from estimate to completion or cancellation.
// The ride value lives only here; callers get copies.
type Controller struct {
	deps Deps

	bg   context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	ride        models.Ride
	seq         uint64
	matchGen    uint64
	matchCancel context.CancelFunc
	timerGen    uint64
	timer       clockwork.Timer

	// emitMu is taken before mu is released so emissions leave in
	// transition order.
	emitMu sync.Mutex
	hub    notify.Hub[models.Ride]
}

type emission struct {
	seq  uint64
	from models.RideState
	ride models.Ride
}

func NewController(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.ArrivalDelay <= 0 {
		d.ArrivalDelay = defaultArrivalDelay
	}
	if d.TripDuration <= 0 {
		d.TripDuration = defaultTripDuration
	}
	now := d.Clock.Now()
	bg, stop := context.WithCancel(context.Background())
	c := &Controller{
		deps: d,
		bg:   bg,
		stop: stop,
		ride: models.Ride{
			ID:        uuid.NewString(),
			State:     models.RideIdle,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	c.deps.Logger = d.Logger.With(zap.String("ride_id", c.ride.ID))
	return c
}

func (c *Controller) Subscribe(fn func(models.Ride)) (unsubscribe func()) {
	return c.hub.Subscribe(fn)
}

// Snapshot returns a copy of the current ride.
func (c *Controller) Snapshot() models.Ride {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRide(c.ride)
}

func (c *Controller) State() models.RideState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ride.State
}

// Close stops background matching and timers without changing state.
func (c *Controller) Close() {
	c.mu.Lock()
	c.matchGen++
	c.stopTimerLocked()
	if c.matchCancel != nil {
		c.matchCancel()
		c.matchCancel = nil
	}
	c.mu.Unlock()
	c.stop()
}

// ConfirmDropoff reads pickup and dropoff from the location store and
// attaches a fare estimate for vehicleClass (empty means bike).
func (c *Controller) ConfirmDropoff(ctx context.Context, vehicleClass string) (models.Ride, error) {
	c.mu.Lock()
	if err := c.checkLocked(models.RideEstimateReady); err != nil {
		c.mu.Unlock()
		return models.Ride{}, err
	}
	pickup, okP := c.deps.Locations.Pickup()
	dropoff, okD := c.deps.Locations.Dropoff()
	if !okP || !okD {
		c.mu.Unlock()
		return models.Ride{}, ErrLocationsNotSet
	}
	if vehicleClass == "" {
		vehicleClass = "bike"
	}
	trip := c.deps.Trips.Trip(pickup.Coord(), dropoff.Coord())
	est, err := c.deps.Fares.EstimateFor(vehicleClass, trip.DistanceKm, trip.DurationMin)
	if err != nil {
		c.mu.Unlock()
		return models.Ride{}, fmt.Errorf("estimate fare: %w", err)
	}
	c.ride.Pickup = pickup
	c.ride.Dropoff = dropoff
	c.ride.VehicleClass = vehicleClass
	c.ride.Estimate = &est
	out := []emission{c.transitionLocked(models.RideEstimateReady)}
	snap := cloneRide(c.ride)
	c.unlockAndEmit(ctx, out)
	return snap, nil
}

// Confirm attaches the payment method and starts driver matching in the
// background. It returns once the ride is MatchingDriver.
func (c *Controller) Confirm(ctx context.Context, method models.PaymentMethod) (models.Ride, error) {
	c.mu.Lock()
	if err := c.checkLocked(models.RideConfirmed); err != nil {
		c.mu.Unlock()
		return models.Ride{}, err
	}
	if !method.Valid() {
		c.mu.Unlock()
		return models.Ride{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
	now := c.deps.Clock.Now()
	c.ride.PaymentMethod = method
	c.ride.ConfirmedAt = &now
	out := []emission{c.transitionLocked(models.RideConfirmed)}
	out = append(out, c.transitionLocked(models.RideMatchingDriver))

	c.matchGen++
	gen := c.matchGen
	mctx, cancel := context.WithCancel(c.bg)
	c.matchCancel = cancel
	pickup := c.ride.Pickup
	snap := cloneRide(c.ride)
	c.unlockAndEmit(ctx, out)
	go c.runMatch(mctx, cancel, gen, pickup)
	return snap, nil
}

func (c *Controller) runMatch(ctx context.Context, cancel context.CancelFunc, gen uint64, pickup models.Location) {
	defer cancel()
	a, err := c.deps.Matcher.FindDriver(ctx, pickup)

	c.mu.Lock()
	if gen != c.matchGen || c.ride.State != models.RideMatchingDriver {
		c.mu.Unlock()
		observability.StaleResultsTotal.WithLabelValues("match").Inc()
		c.deps.Logger.Debug("discarding late match result", zap.Error(err))
		return
	}
	c.matchCancel = nil

	var out []emission
	if err != nil {
		if !errors.Is(err, matcher.ErrNoDriver) {
			c.deps.Logger.Warn("driver matching failed", zap.Error(err))
		}
		out = c.cancelLocked(reasonNoDriver, false)
	} else {
		c.ride.Driver = &a
		out = append(out, c.transitionLocked(models.RideDriverAssigned))
		out = append(out, c.transitionLocked(models.RidePickupPending))
		c.armLocked(c.deps.ArrivalDelay, models.RidePickupPending, c.onArrival)
	}
	c.unlockAndEmit(c.bg, out)
}

func (c *Controller) onArrival() {
	c.mu.Lock()
	if c.ride.State != models.RidePickupPending {
		c.mu.Unlock()
		return
	}
	out := []emission{c.transitionLocked(models.RideInProgress)}
	c.armLocked(c.deps.TripDuration, models.RideInProgress, c.onTripEnd)
	c.unlockAndEmit(c.bg, out)
}

func (c *Controller) onTripEnd() {
	if _, err := c.CompleteTrip(c.bg); err != nil && !errors.Is(err, ErrInvalidStateTransition) {
		c.deps.Logger.Warn("automatic trip completion failed", zap.Error(err))
	}
}

// CompleteTrip finishes an in-progress ride and archives it.
func (c *Controller) CompleteTrip(ctx context.Context) (models.Ride, error) {
	c.mu.Lock()
	if err := c.checkLocked(models.RideCompleted); err != nil {
		c.mu.Unlock()
		return models.Ride{}, err
	}
	c.stopTimerLocked()
	now := c.deps.Clock.Now()
	c.ride.CompletedAt = &now
	out := []emission{c.transitionLocked(models.RideCompleted)}
	snap := cloneRide(c.ride)
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	if c.deps.History != nil {
		if err := c.deps.History.Append(ctx, snap); err != nil {
			c.deps.Logger.Error("failed to archive completed ride", zap.Error(err))
		}
	}
	c.emit(ctx, out...)
	return snap, nil
}

// Cancel ends the ride from any non-terminal state. Pending matching and
// timers are abandoned and the driver and estimate are discarded.
func (c *Controller) Cancel(ctx context.Context, reason string) (models.Ride, error) {
	c.mu.Lock()
	if err := c.checkLocked(models.RideCancelled); err != nil {
		c.mu.Unlock()
		return models.Ride{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = reasonRiderCancel
	}
	out := c.cancelLocked(reason, true)
	snap := cloneRide(c.ride)
	c.unlockAndEmit(ctx, out)
	return snap, nil
}

func (c *Controller) cancelLocked(reason string, byRider bool) []emission {
	c.matchGen++
	if c.matchCancel != nil {
		c.matchCancel()
		c.matchCancel = nil
	}
	c.stopTimerLocked()

	now := c.deps.Clock.Now()
	if byRider {
		c.ride.CancellationFee = CancellationFee(c.ride.State, c.ride.ConfirmedAt, now)
	}
	c.ride.CancelReason = reason
	c.ride.CancelledAt = &now
	c.ride.Driver = nil
	c.ride.Estimate = nil
	return []emission{c.transitionLocked(models.RideCancelled)}
}

// checkLocked rejects a move to target that the state machine forbids.
func (c *Controller) checkLocked(target models.RideState) error {
	if !c.ride.State.CanTransitionTo(target) {
		return &TransitionError{From: c.ride.State, To: target}
	}
	return nil
}

func (c *Controller) transitionLocked(to models.RideState) emission {
	from := c.ride.State
	c.ride.State = to
	c.ride.UpdatedAt = c.deps.Clock.Now()
	c.seq++
	observability.RideTransitionsTotal.WithLabelValues(string(to)).Inc()
	return emission{seq: c.seq, from: from, ride: cloneRide(c.ride)}
}

// armLocked schedules fn after d; it only runs if no other timer was armed
// or stopped in between and the ride is still in state.
func (c *Controller) armLocked(d time.Duration, state models.RideState, fn func()) {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = c.deps.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		stale := gen != c.timerGen || c.ride.State != state
		c.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) unlockAndEmit(ctx context.Context, out []emission) {
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	c.emit(ctx, out...)
}

func (c *Controller) emit(ctx context.Context, out ...emission) {
	for _, e := range out {
		c.deps.Logger.Info("ride transition",
			zap.String("from", string(e.from)),
			zap.String("to", string(e.ride.State)))
		c.hub.Publish(e.seq, e.ride)
		if err := c.deps.Events.Publish(ctx, events.NewTransition(e.from, e.ride, e.ride.UpdatedAt)); err != nil {
			c.deps.Logger.Warn("failed to publish ride event", zap.String("state", string(e.ride.State)), zap.Error(err))
		}
	}
}

func cloneRide(r models.Ride) models.Ride {
	c := r
	if r.Estimate != nil {
		e := *r.Estimate
		c.Estimate = &e
	}
	if r.Driver != nil {
		d := *r.Driver
		c.Driver = &d
	}
	c.ConfirmedAt = cloneTime(r.ConfirmedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
