package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/location"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/notify"
	"github.com/example/rider-core/internal/observability"
	"github.com/example/rider-core/internal/places"
)

var (
	ErrResolutionFailure = errors.New("location could not be resolved")
	ErrSuperseded        = errors.New("superseded by a newer selection")
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrInvalidTarget     = errors.New("target must be pickup or dropoff")
	ErrNoPinnedLocation  = errors.New("no pinned location to confirm")
)

const currentLocationName = "Current Location"

// DeviceLocator reports the device position. Implementations return
// ErrPermissionDenied when the rider has not granted access.
type DeviceLocator interface {
	CurrentPosition(ctx context.Context) (models.Coord, error)
}

type Options struct {
	Debounce       time.Duration
	PinDebounce    time.Duration
	MinQueryLength int
	Clock          clockwork.Clock
	Logger         *zap.Logger
}

// Resolver turns typed text, list selections and map pins into locations
// recorded in the store. Only the most recently issued lookup of each kind
// may change state.
type Resolver struct {
	lookup places.Lookup
	store  *location.Store

	clock       clockwork.Clock
	debounce    time.Duration
	pinDebounce time.Duration
	minQuery    int
	logger      *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu   sync.Mutex
	view View
	seq  uint64

	searchGen    uint64
	searchTimer  clockwork.Timer
	searchCancel context.CancelFunc

	resolveGen    uint64
	resolveCancel context.CancelFunc
	commitMu      sync.Mutex

	pinGen    uint64
	pinTimer  clockwork.Timer
	pinCancel context.CancelFunc

	hub notify.Hub[View]
}

func New(lookup places.Lookup, store *location.Store, opts Options) *Resolver {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.PinDebounce <= 0 {
		opts.PinDebounce = 400 * time.Millisecond
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = places.MinQueryLength
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		lookup:      lookup,
		store:       store,
		clock:       opts.Clock,
		debounce:    opts.Debounce,
		pinDebounce: opts.PinDebounce,
		minQuery:    opts.MinQueryLength,
		logger:      opts.Logger,
		baseCtx:     ctx,
		stop:        cancel,
		view:        View{State: ShowingRecent, Recent: store.RecentLocations()},
	}
}

// Close stops pending timers and cancels in-flight lookups.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.searchGen++
	r.pinGen++
	r.resolveGen++
	r.stopSearchLocked()
	r.stopPinLocked()
	if r.resolveCancel != nil {
		r.resolveCancel()
	}
	r.mu.Unlock()
	r.stop()
}

func (r *Resolver) Subscribe(fn func(View)) (unsubscribe func()) {
	return r.hub.Subscribe(fn)
}

func (r *Resolver) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.clone()
}

// OnQueryChanged restarts the debounce timer. Empty text shows recent
// locations; text shorter than the minimum clears the list without a search.
func (r *Resolver) OnQueryChanged(text string) {
	r.mu.Lock()
	r.searchGen++
	gen := r.searchGen
	r.stopSearchLocked()

	q := strings.TrimSpace(text)
	next := r.view
	next.Query = text
	next.Error = ""
	switch {
	case q == "":
		next.State = ShowingRecent
		next.Suggestions = nil
		next.Recent = r.store.RecentLocations()
	case utf8.RuneCountInString(q) < r.minQuery:
		next.State = Idle
		next.Suggestions = nil
		next.Recent = nil
	default:
		r.searchTimer = r.clock.AfterFunc(r.debounce, func() { r.runSearch(gen, q) })
	}
	seq, v := r.setViewLocked(next)
	r.mu.Unlock()

	r.hub.Publish(seq, v)
}

func (r *Resolver) runSearch(gen uint64, q string) {
	r.mu.Lock()
	if gen != r.searchGen {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	defer cancel()
	r.searchCancel = cancel
	next := r.view
	next.State = Searching
	next.Error = ""
	seq, v := r.setViewLocked(next)
	r.mu.Unlock()
	r.hub.Publish(seq, v)

	suggestions, err := r.lookup.Search(ctx, q)

	r.mu.Lock()
	if gen != r.searchGen {
		r.mu.Unlock()
		observability.StaleResultsTotal.WithLabelValues("search").Inc()
		r.logger.Debug("discarding stale search result", zap.String("query", q))
		return
	}
	r.searchCancel = nil
	next = r.view
	next.Recent = r.matchingRecent(q)
	next.Error = ""
	switch {
	case err == nil && len(suggestions) > 0:
		next.State = Results
		next.Suggestions = suggestions
	case err == nil, errors.Is(err, places.ErrNoResults):
		next.State = NoResults
		next.Suggestions = nil
	default:
		r.logger.Warn("place search failed", zap.String("query", q), zap.Error(err))
		next.State = Failed
		next.Suggestions = nil
		next.Error = "No suggestions found"
	}
	seq, v = r.setViewLocked(next)
	r.mu.Unlock()
	r.hub.Publish(seq, v)
}

// OnSuggestionSelected resolves s and records it in the store before
// returning. A later selection makes this one return ErrSuperseded without
// touching the store.
func (r *Resolver) OnSuggestionSelected(ctx context.Context, s models.Suggestion, target Target) (models.Location, error) {
	if !target.Valid() {
		return models.Location{}, ErrInvalidTarget
	}
	r.mu.Lock()
	r.resolveGen++
	gen := r.resolveGen
	if r.resolveCancel != nil {
		r.resolveCancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.resolveCancel = cancel
	r.mu.Unlock()

	loc, err := r.lookup.Resolve(rctx, s.ID)
	if err == nil && loc.Name == "" {
		loc.Name = s.PrimaryText
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	if !r.current(gen) {
		observability.StaleResultsTotal.WithLabelValues("resolve").Inc()
		return models.Location{}, ErrSuperseded
	}
	if err != nil {
		observability.ResolutionsTotal.WithLabelValues("suggestion", "failure").Inc()
		if ctx.Err() != nil {
			return models.Location{}, ctx.Err()
		}
		r.logger.Warn("suggestion resolution failed", zap.String("place_id", s.ID), zap.Error(err))
		return models.Location{}, fmt.Errorf("%w: %w", ErrResolutionFailure, err)
	}
	r.record(ctx, loc, target)
	observability.ResolutionsTotal.WithLabelValues("suggestion", "ok").Inc()
	return loc, nil
}

// SelectRecent records an already-resolved recent location.
func (r *Resolver) SelectRecent(ctx context.Context, loc models.Location, target Target) error {
	return r.selectResolved(ctx, "recent", loc, target)
}

// SelectPinned records a map-picked location.
func (r *Resolver) SelectPinned(ctx context.Context, loc models.Location, target Target) error {
	return r.selectResolved(ctx, "pin", loc, target)
}

// SelectManual records a location the rider set directly on a slot.
func (r *Resolver) SelectManual(ctx context.Context, loc models.Location, target Target) error {
	return r.selectResolved(ctx, "manual", loc, target)
}

// ConfirmPin records the pin candidate produced by the last OnPinMoved.
func (r *Resolver) ConfirmPin(ctx context.Context, target Target) (models.Location, error) {
	r.mu.Lock()
	var pinned *models.Location
	if r.view.PinState == PinResolved || r.view.PinState == PinFailed {
		pinned = r.view.Pinned
	}
	r.mu.Unlock()
	if pinned == nil {
		return models.Location{}, ErrNoPinnedLocation
	}
	loc := *pinned
	if err := r.SelectPinned(ctx, loc, target); err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

func (r *Resolver) selectResolved(ctx context.Context, source string, loc models.Location, target Target) error {
	if !target.Valid() {
		return ErrInvalidTarget
	}
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	r.mu.Lock()
	r.resolveGen++
	if r.resolveCancel != nil {
		r.resolveCancel()
		r.resolveCancel = nil
	}
	r.mu.Unlock()

	r.record(ctx, loc, target)
	observability.ResolutionsTotal.WithLabelValues(source, "ok").Inc()
	return nil
}

// OnPinMoved restarts the pin debounce; after it elapses the pin is
// reverse-geocoded into a candidate location.
func (r *Resolver) OnPinMoved(lat, lng float64) {
	r.mu.Lock()
	r.pinGen++
	gen := r.pinGen
	r.stopPinLocked()
	next := r.view
	next.PinState = PinResolving
	next.Pinned = &models.Location{Latitude: lat, Longitude: lng}
	r.pinTimer = r.clock.AfterFunc(r.pinDebounce, func() { r.runPin(gen, lat, lng) })
	seq, v := r.setViewLocked(next)
	r.mu.Unlock()
	r.hub.Publish(seq, v)
}

func (r *Resolver) runPin(gen uint64, lat, lng float64) {
	r.mu.Lock()
	if gen != r.pinGen {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	defer cancel()
	r.pinCancel = cancel
	r.mu.Unlock()

	loc, err := r.lookup.ReverseGeocode(ctx, lat, lng)

	r.mu.Lock()
	if gen != r.pinGen {
		r.mu.Unlock()
		observability.StaleResultsTotal.WithLabelValues("pin").Inc()
		return
	}
	r.pinCancel = nil
	next := r.view
	if err != nil {
		r.logger.Warn("reverse geocode failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		next.PinState = PinFailed
		next.Pinned = &models.Location{Latitude: lat, Longitude: lng}
	} else {
		next.PinState = PinResolved
		next.Pinned = &loc
	}
	seq, v := r.setViewLocked(next)
	r.mu.Unlock()
	r.hub.Publish(seq, v)
}

// UseCurrentLocation asks the locator for the device position and makes it
// both the current location and the pickup. A failed reverse geocode still
// yields a usable, unnamed-address location.
func (r *Resolver) UseCurrentLocation(ctx context.Context, locator DeviceLocator) (models.Location, error) {
	pos, err := locator.CurrentPosition(ctx)
	if errors.Is(err, ErrPermissionDenied) {
		observability.ResolutionsTotal.WithLabelValues("device", "denied").Inc()
		return models.Location{}, err
	}
	if err != nil {
		observability.ResolutionsTotal.WithLabelValues("device", "failure").Inc()
		return models.Location{}, fmt.Errorf("%w: %w", ErrResolutionFailure, err)
	}

	loc, err := r.lookup.ReverseGeocode(ctx, pos.Lat, pos.Lon)
	if err != nil {
		if ctx.Err() != nil {
			return models.Location{}, ctx.Err()
		}
		r.logger.Warn("reverse geocode of device position failed", zap.Error(err))
		loc = models.Location{Latitude: pos.Lat, Longitude: pos.Lon, Name: currentLocationName}
	}

	r.store.SetCurrentLocation(loc)
	if err := r.selectResolved(ctx, "device", loc, TargetPickup); err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

// matchingRecent returns recent locations whose name or address contains q.
func (r *Resolver) matchingRecent(q string) []models.Location {
	q = strings.ToLower(q)
	var out []models.Location
	for _, l := range r.store.RecentLocations() {
		if strings.Contains(strings.ToLower(l.Name), q) || strings.Contains(strings.ToLower(l.Address), q) {
			out = append(out, l)
		}
	}
	return out
}

func (r *Resolver) record(ctx context.Context, loc models.Location, target Target) {
	switch target {
	case TargetPickup:
		r.store.SetPickupLocation(ctx, loc)
	case TargetDropoff:
		r.store.SetDropoffLocation(ctx, loc)
	}
}

func (r *Resolver) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.resolveGen {
		return false
	}
	r.resolveCancel = nil
	return true
}

func (r *Resolver) setViewLocked(v View) (uint64, View) {
	r.view = v
	r.seq++
	return r.seq, v.clone()
}

func (r *Resolver) stopSearchLocked() {
	if r.searchTimer != nil {
		r.searchTimer.Stop()
		r.searchTimer = nil
	}
	if r.searchCancel != nil {
		r.searchCancel()
		r.searchCancel = nil
	}
}

func (r *Resolver) stopPinLocked() {
	if r.pinTimer != nil {
		r.pinTimer.Stop()
		r.pinTimer = nil
	}
	if r.pinCancel != nil {
		r.pinCancel()
		r.pinCancel = nil
	}
}
