package location

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/storage"
)

type memPersister struct {
	mu      sync.Mutex
	saved   [][]models.Location
	loaded  []models.Location
	loadErr error
	saveErr error
}

func (m *memPersister) LoadRecent(context.Context) ([]models.Location, error) {
	return m.loaded, m.loadErr
}

func (m *memPersister) SaveRecent(_ context.Context, recent []models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, recent)
	return nil
}

func (m *memPersister) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func loc(addr string) models.Location {
	return models.Location{Latitude: 12.9, Longitude: 77.6, Address: addr, Name: addr}
}

func TestAddRecentDeduplicatesByAddress(t *testing.T) {
	p := &memPersister{}
	s := NewStore(context.Background(), p, zap.NewNop())
	ctx := context.Background()

	s.AddRecentLocation(ctx, loc("123 Main St"))
	s.AddRecentLocation(ctx, loc("456 Park Ave"))
	s.AddRecentLocation(ctx, loc("123 Main St"))

	recent := s.RecentLocations()
	require.Len(t, recent, 2)
	assert.Equal(t, "456 Park Ave", recent[0].Address)
	assert.Equal(t, "123 Main St", recent[1].Address, "existing entry keeps its position")
	assert.Equal(t, 2, p.saves(), "duplicate add does not persist")
}

func TestAddRecentIgnoresEmptyAddress(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	s.AddRecentLocation(context.Background(), models.Location{Latitude: 1, Longitude: 2})
	assert.Empty(t, s.RecentLocations())
}

func TestRecentIsBoundedAndMostRecentFirst(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	for i := 0; i < 11; i++ {
		s.AddRecentLocation(context.Background(), loc(fmt.Sprintf("addr-%02d", i)))
	}
	recent := s.RecentLocations()
	require.Len(t, recent, MaxRecent)
	assert.Equal(t, "addr-10", recent[0].Address)
	assert.Equal(t, "addr-01", recent[MaxRecent-1].Address)
	for _, l := range recent {
		assert.NotEqual(t, "addr-00", l.Address, "oldest entry evicted")
	}
}

func TestSetPickupAndDropoffRecordRecent(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	ctx := context.Background()
	s.SetPickupLocation(ctx, loc("Koramangala"))
	s.SetDropoffLocation(ctx, loc("Whitefield"))

	p, ok := s.Pickup()
	require.True(t, ok)
	assert.Equal(t, "Koramangala", p.Address)
	d, ok := s.Dropoff()
	require.True(t, ok)
	assert.Equal(t, "Whitefield", d.Address)

	recent := s.RecentLocations()
	require.Len(t, recent, 2)
	assert.Equal(t, "Whitefield", recent[0].Address)
}

func TestSwapLocationsIsAtomic(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	ctx := context.Background()
	s.SetPickupLocation(ctx, loc("A"))
	s.SetDropoffLocation(ctx, loc("B"))

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })
	s.SwapLocations()

	require.Len(t, seen, 1, "one notification per swap")
	assert.Equal(t, "B", seen[0].Pickup.Address)
	assert.Equal(t, "A", seen[0].Dropoff.Address)

	p, _ := s.Pickup()
	d, _ := s.Dropoff()
	assert.Equal(t, "B", p.Address)
	assert.Equal(t, "A", d.Address)
}

func TestSwapWithOnlyPickupSet(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	s.SetPickupLocation(context.Background(), loc("A"))
	s.SwapLocations()

	_, ok := s.Pickup()
	assert.False(t, ok)
	d, ok := s.Dropoff()
	require.True(t, ok)
	assert.Equal(t, "A", d.Address)
}

func TestClearLocationsKeepsCurrentAndRecent(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	ctx := context.Background()
	s.SetCurrentLocation(loc("Here"))
	s.SetPickupLocation(ctx, loc("A"))
	s.SetDropoffLocation(ctx, loc("B"))

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })
	s.ClearLocations()

	require.Len(t, seen, 1)
	assert.Nil(t, seen[0].Pickup)
	assert.Nil(t, seen[0].Dropoff)
	require.NotNil(t, seen[0].Current)
	assert.Len(t, seen[0].Recent, 2)

	_, ok := s.Pickup()
	assert.False(t, ok)
	_, ok = s.Current()
	assert.True(t, ok)
}

func TestSetCurrentLocationDoesNotTouchRecent(t *testing.T) {
	p := &memPersister{}
	s := NewStore(context.Background(), p, zap.NewNop())
	s.SetCurrentLocation(loc("Here"))
	assert.Empty(t, s.RecentLocations())
	assert.Zero(t, p.saves())
}

func TestLoadNormalizesPersistedList(t *testing.T) {
	loaded := []models.Location{loc("A"), loc("A"), {Latitude: 1}}
	for i := 0; i < 12; i++ {
		loaded = append(loaded, loc(fmt.Sprintf("x%d", i)))
	}
	s := NewStore(context.Background(), &memPersister{loaded: loaded}, zap.NewNop())
	recent := s.RecentLocations()
	require.Len(t, recent, MaxRecent)
	assert.Equal(t, "A", recent[0].Address)
	assert.Equal(t, "x0", recent[1].Address)
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{loadErr: errors.New("disk on fire")}, zap.NewNop())
	assert.Empty(t, s.RecentLocations())
}

func TestSaveFailureDoesNotFailMutation(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{saveErr: errors.New("read-only")}, zap.NewNop())
	s.SetDropoffLocation(context.Background(), loc("B"))
	assert.Len(t, s.RecentLocations(), 1)
	_, ok := s.Dropoff()
	assert.True(t, ok)
}

func TestRecentSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	ctx := context.Background()

	first := NewStore(ctx, storage.NewFilePersister(path), zap.NewNop())
	first.SetPickupLocation(ctx, loc("Indiranagar"))
	first.SetDropoffLocation(ctx, loc("MG Road"))

	second := NewStore(ctx, storage.NewFilePersister(path), zap.NewNop())
	recent := second.RecentLocations()
	require.Len(t, recent, 2)
	assert.Equal(t, "MG Road", recent[0].Address)
	_, ok := second.Pickup()
	assert.False(t, ok, "only the recent list is persisted")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(context.Background(), &memPersister{}, zap.NewNop())
	s.SetPickupLocation(context.Background(), loc("A"))
	snap := s.Snapshot()
	snap.Pickup.Address = "mutated"
	snap.Recent[0].Address = "mutated"

	p, _ := s.Pickup()
	assert.Equal(t, "A", p.Address)
	assert.Equal(t, "A", s.RecentLocations()[0].Address)
}

func TestConcurrentAddsPersistNewest(t *testing.T) {
	p := &memPersister{}
	s := NewStore(context.Background(), p, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddRecentLocation(context.Background(), loc(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	p.mu.Lock()
	last := p.saved[len(p.saved)-1]
	p.mu.Unlock()
	assert.Equal(t, s.RecentLocations(), last)
}

type ctxPersister struct {
	memPersister
}

func (c *ctxPersister) SaveRecent(ctx context.Context, recent []models.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memPersister.SaveRecent(ctx, recent)
}

func TestRecentSavedWhenCallerContextCancelled(t *testing.T) {
	p := &ctxPersister{}
	s := NewStore(context.Background(), p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.SetDropoffLocation(ctx, loc("HSR Layout"))
	s.SwapLocations()

	require.Equal(t, 1, p.saves())
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.saved[0], 1)
	assert.Equal(t, "HSR Layout", p.saved[0][0].Address)
}
