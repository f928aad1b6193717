package ride

import (
	"time"

	"github.com/example/rider-core/internal/models"
)

// FreeCancellationWindow is how long after confirming a rider may cancel
// without a fee.
const FreeCancellationWindow = 2 * time.Minute

// CancellationReasons are the reasons offered to a rider; any other text is
// accepted as-is.
var CancellationReasons = []string{
	"Change of plans",
	"Driver taking too long to arrive",
	"Found alternative transportation",
	"Emergency situation",
	"Incorrect pickup location",
	"Weather conditions",
	"App/booking issues",
	"Other",
}

// CancellationFee is free inside the window after confirming and before
// confirmation at all. Past the window a started trip costs the most and
// every other state a flat fee.
func CancellationFee(state models.RideState, confirmedAt *time.Time, now time.Time) float64 {
	if confirmedAt == nil || now.Sub(*confirmedAt) < FreeCancellationWindow {
		return 0
	}
	if state == models.RideInProgress {
		return 5
	}
	return 1.5
}
