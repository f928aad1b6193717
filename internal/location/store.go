package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/notify"
	"github.com/example/rider-core/internal/storage"
)

// MaxRecent bounds the recent-locations list.
const MaxRecent = 10

const saveTimeout = 10 * time.Second

// Snapshot is a consistent view of the store taken under its lock.
type Snapshot struct {
	Current *models.Location  `json:"current,omitempty"`
	Pickup  *models.Location  `json:"pickup,omitempty"`
	Dropoff *models.Location  `json:"dropoff,omitempty"`
	Recent  []models.Location `json:"recent_locations"`
}

// Store holds the rider's current, pickup and dropoff points plus the
// persisted list of recently used places. Only the recent list survives a
// restart.
type Store struct {
	mu            sync.Mutex
	current       *models.Location
	pickup        *models.Location
	dropoff       *models.Location
	recent        []models.Location
	seq           uint64
	recentVersion uint64

	saveMu       sync.Mutex
	savedVersion uint64

	persister storage.RecentPersister
	hub       notify.Hub[Snapshot]
	logger    *zap.Logger
}

// NewStore loads the recent list once. A load failure is logged and the
// store starts empty.
func NewStore(ctx context.Context, p storage.RecentPersister, logger *zap.Logger) *Store {
	s := &Store{persister: p, logger: logger}
	if p == nil {
		return s
	}
	loaded, err := p.LoadRecent(ctx)
	if err != nil {
		logger.Warn("failed to load recent locations", zap.Error(err))
		return s
	}
	for _, loc := range loaded {
		if len(s.recent) == MaxRecent {
			break
		}
		if loc.Address == "" || indexOf(s.recent, loc) >= 0 {
			continue
		}
		s.recent = append(s.recent, loc)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

func (s *Store) SetCurrentLocation(loc models.Location) {
	s.mutate(context.Background(), func() bool {
		s.current = &loc
		return false
	})
}

// SetPickupLocation sets the pickup point and records it as recent.
func (s *Store) SetPickupLocation(ctx context.Context, loc models.Location) {
	s.mutate(ctx, func() bool {
		s.pickup = &loc
		return s.addRecentLocked(loc)
	})
}

// SetDropoffLocation sets the dropoff point and records it as recent.
func (s *Store) SetDropoffLocation(ctx context.Context, loc models.Location) {
	s.mutate(ctx, func() bool {
		s.dropoff = &loc
		return s.addRecentLocked(loc)
	})
}

// AddRecentLocation prepends loc unless its address is empty or already
// listed; an existing entry keeps its position.
func (s *Store) AddRecentLocation(ctx context.Context, loc models.Location) {
	s.mutate(ctx, func() bool {
		return s.addRecentLocked(loc)
	})
}

// SwapLocations exchanges pickup and dropoff in one step.
func (s *Store) SwapLocations() {
	s.mutate(context.Background(), func() bool {
		s.pickup, s.dropoff = s.dropoff, s.pickup
		return false
	})
}

// ClearLocations unsets pickup and dropoff in one step. Current location and
// the recent list are kept.
func (s *Store) ClearLocations() {
	s.mutate(context.Background(), func() bool {
		s.pickup, s.dropoff = nil, nil
		return false
	})
}

func (s *Store) Current() (models.Location, bool) { return s.get(&s.current) }
func (s *Store) Pickup() (models.Location, bool)  { return s.get(&s.pickup) }
func (s *Store) Dropoff() (models.Location, bool) { return s.get(&s.dropoff) }

func (s *Store) RecentLocations() []models.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.recent)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) get(field **models.Location) (models.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *field == nil {
		return models.Location{}, false
	}
	return **field, true
}

// mutate applies fn under the lock, notifies with the resulting snapshot and
// persists the recent list when fn reports it changed.
func (s *Store) mutate(ctx context.Context, fn func() (recentChanged bool)) {
	s.mu.Lock()
	changed := fn()
	if changed {
		s.recentVersion++
	}
	s.seq++
	seq := s.seq
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(seq, snap)
	if changed {
		s.persist(ctx)
	}
}

func (s *Store) addRecentLocked(loc models.Location) bool {
	if loc.Address == "" || indexOf(s.recent, loc) >= 0 {
		return false
	}
	next := make([]models.Location, 0, MaxRecent)
	next = append(next, loc)
	next = append(next, s.recent...)
	if len(next) > MaxRecent {
		next = next[:MaxRecent]
	}
	s.recent = next
	return true
}

// persist writes the newest recent list. Writes are serialized and a write
// never replaces a newer one already on disk. The save outlives the caller's
// cancellation but is bounded by saveTimeout.
func (s *Store) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	version := s.recentVersion
	recent := cloneList(s.recent)
	s.mu.Unlock()

	if version <= s.savedVersion {
		return
	}
	if err := s.persister.SaveRecent(ctx, recent); err != nil {
		s.logger.Warn("failed to persist recent locations", zap.Error(err), zap.Int("count", len(recent)))
		return
	}
	s.savedVersion = version
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Current: clonePtr(s.current),
		Pickup:  clonePtr(s.pickup),
		Dropoff: clonePtr(s.dropoff),
		Recent:  cloneList(s.recent),
	}
}

func indexOf(list []models.Location, loc models.Location) int {
	for i, l := range list {
		if l.SameAddress(loc) {
			return i
		}
	}
	return -1
}

func clonePtr(l *models.Location) *models.Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func cloneList(list []models.Location) []models.Location {
	out := make([]models.Location, len(list))
	copy(out, list)
	return out
}
