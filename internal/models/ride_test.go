package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRideStateMachine(t *testing.T) {
	forward := []RideState{
		RideIdle, RideEstimateReady, RideConfirmed, RideMatchingDriver,
		RideDriverAssigned, RidePickupPending, RideInProgress, RideCompleted,
	}
	for i := 0; i < len(forward)-1; i++ {
		from, to := forward[i], forward[i+1]
		assert.True(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		assert.Equal(t, to, from.Next())
		assert.True(t, from.CanTransitionTo(RideCancelled), "%s cancellable", from)
		assert.False(t, from.Terminal())
		for j := 0; j < len(forward); j++ {
			if j != i+1 {
				assert.False(t, from.CanTransitionTo(forward[j]), "%s -> %s must be rejected", from, forward[j])
			}
		}
	}
	for _, s := range []RideState{RideCompleted, RideCancelled} {
		assert.True(t, s.Terminal())
		assert.Empty(t, s.Next())
		for _, to := range append(forward, RideCancelled) {
			assert.False(t, s.CanTransitionTo(to))
		}
	}
	assert.False(t, RideState("teleporting").IsValid())
}

func TestPaymentMethodValid(t *testing.T) {
	for _, p := range []PaymentMethod{PaymentCash, PaymentUPI, PaymentWallet} {
		assert.True(t, p.Valid())
	}
	assert.False(t, PaymentMethod("card").Valid())
	assert.False(t, PaymentMethod("").Valid())
}

func TestSameAddress(t *testing.T) {
	a := Location{Address: "123 Main St"}
	assert.True(t, a.SameAddress(Location{Address: "123 Main St", Latitude: 9}))
	assert.False(t, a.SameAddress(Location{Address: "123 main st"}))
	assert.False(t, Location{}.SameAddress(Location{}))
}
