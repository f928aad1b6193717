package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rider-core/internal/models"
)

func completedRide(id string) models.Ride {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return models.Ride{
		ID:          id,
		State:       models.RideCompleted,
		Pickup:      models.Location{Address: "Koramangala"},
		Dropoff:     models.Location{Address: "Electronic City"},
		Estimate:    &models.FareEstimate{Fare: 85},
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	require.NoError(t, h.Append(ctx, completedRide("r1")))
	require.NoError(t, h.Append(ctx, completedRide("r2")))
	require.NoError(t, h.Append(ctx, completedRide("r3")))
	require.NoError(t, h.Append(ctx, completedRide("r2")), "duplicate append is a no-op")

	all, err := h.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].Ride.ID)
	assert.Equal(t, "r1", all[2].Ride.ID)

	two, err := h.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "r2", two[1].Ride.ID)
}

func TestMemoryHistoryRejectsUnfinishedRide(t *testing.T) {
	r := completedRide("r1")
	r.State = models.RideCancelled
	err := NewMemoryHistory().Append(context.Background(), r)
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestMemoryHistoryFeedback(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	require.NoError(t, h.Append(ctx, completedRide("r1")))

	err := h.SubmitFeedback(ctx, "r1", models.Feedback{Rating: 5, Tags: []string{"Safe ride"}, Tip: 20})
	require.NoError(t, err)
	e, err := h.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, e.Feedback)
	assert.Equal(t, 5, e.Feedback.Rating)
	assert.EqualValues(t, 20, e.Feedback.Tip)
	assert.False(t, e.Feedback.SubmittedAt.IsZero())

	assert.ErrorIs(t, h.SubmitFeedback(ctx, "missing", models.Feedback{Rating: 4}), ErrRideNotFound)
	_, err = h.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRideNotFound)
}

func TestValidateFeedback(t *testing.T) {
	cases := []struct {
		name string
		fb   models.Feedback
		ok   bool
	}{
		{"min rating", models.Feedback{Rating: 1}, true},
		{"max rating with tip", models.Feedback{Rating: 5, Tip: 50}, true},
		{"zero rating", models.Feedback{Rating: 0}, false},
		{"rating too high", models.Feedback{Rating: 6}, false},
		{"negative tip", models.Feedback{Rating: 3, Tip: -10}, false},
		{"huge tip", models.Feedback{Rating: 3, Tip: 10000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFeedback(tc.fb)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFeedback)
			}
		})
	}
}
