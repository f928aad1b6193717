package events

import (
	"context"
	"time"

	"github.com/example/rider-core/internal/models"
)

// Event is one ride lifecycle transition as written to the broker.
type Event struct {
	Type       string           `json:"type"`
	RideID     string           `json:"ride_id"`
	From       models.RideState `json:"from"`
	State      models.RideState `json:"state"`
	OccurredAt time.Time        `json:"occurred_at"`
	Ride       models.Ride      `json:"ride"`
}

func NewTransition(from models.RideState, r models.Ride, at time.Time) Event {
	return Event{
		Type:       "ride." + string(r.State),
		RideID:     r.ID,
		From:       from,
		State:      r.State,
		OccurredAt: at.UTC(),
		Ride:       r,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
