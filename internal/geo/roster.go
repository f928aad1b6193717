package geo

import (
	"context"

	"github.com/example/rider-core/internal/models"
)

// RosterEntry is a simulated driver placed at a fixed offset from whoever asks.
type RosterEntry struct {
	Driver  models.Driver
	NorthKm float64
	EastKm  float64
}

// Roster is the default simulated pool: every lookup sees the same drivers
// scattered around the requested point.
type Roster struct {
	entries []RosterEntry
}

func NewRoster(entries ...RosterEntry) *Roster {
	if len(entries) == 0 {
		entries = DefaultRoster()
	}
	return &Roster{entries: entries}
}

func DefaultRoster() []RosterEntry {
	return []RosterEntry{
		{
			Driver: models.Driver{
				ID: "1", Name: "Rajesh Kumar", Rating: 4.8, Online: true,
				VehicleModel: "Honda Activa", VehicleNumber: "KA 01 AB 1234", PhotoRef: "drivers/1.jpg",
			},
			NorthKm: 0.8,
		},
		{
			Driver: models.Driver{
				ID: "2", Name: "Suresh Reddy", Rating: 4.9, Online: true,
				VehicleModel: "TVS Jupiter", VehicleNumber: "KA 02 CD 5678", PhotoRef: "drivers/2.jpg",
			},
			EastKm: 1.2,
		},
	}
}

func (r *Roster) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	idx := NewIndex()
	for _, e := range r.entries {
		d := e.Driver
		d.Loc = Offset(at, e.NorthKm, e.EastKm)
		idx.Upsert(d)
	}
	return idx.Nearby(ctx, at, limit)
}
