package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/rider-core/internal/models"
)

var (
	ErrRideNotFound    = errors.New("ride not found in history")
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrNotCompleted    = errors.New("only completed rides are archived")
)

// History archives completed rides and the feedback left on them.
type History interface {
	Append(ctx context.Context, r models.Ride) error
	// List returns entries newest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	Get(ctx context.Context, rideID string) (models.HistoryEntry, error)
	SubmitFeedback(ctx context.Context, rideID string, fb models.Feedback) error
}

const maxTip = 500

// ValidateFeedback checks the rating range and a non-negative, bounded tip.
func ValidateFeedback(fb models.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("%w: rating %d outside 1..5", ErrInvalidFeedback, fb.Rating)
	}
	if fb.Tip < 0 || fb.Tip > maxTip {
		return fmt.Errorf("%w: tip %d outside 0..%d", ErrInvalidFeedback, fb.Tip, maxTip)
	}
	return nil
}

type MemoryHistory struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]models.HistoryEntry
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string]models.HistoryEntry)}
}

func (m *MemoryHistory) Append(_ context.Context, r models.Ride) error {
	if r.State != models.RideCompleted {
		return fmt.Errorf("%w: ride %s is %s", ErrNotCompleted, r.ID, r.State)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[r.ID]; ok {
		return nil
	}
	m.entries[r.ID] = models.HistoryEntry{Ride: r}
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryHistory) List(_ context.Context, limit int) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.HistoryEntry, 0, n)
	for i := len(m.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[m.order[i]])
	}
	return out, nil
}

func (m *MemoryHistory) Get(_ context.Context, rideID string) (models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[rideID]
	if !ok {
		return models.HistoryEntry{}, ErrRideNotFound
	}
	return e, nil
}

func (m *MemoryHistory) SubmitFeedback(_ context.Context, rideID string, fb models.Feedback) error {
	if err := ValidateFeedback(fb); err != nil {
		return err
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[rideID]
	if !ok {
		return ErrRideNotFound
	}
	e.Feedback = &fb
	m.entries[rideID] = e
	return nil
}
