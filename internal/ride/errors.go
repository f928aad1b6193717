package ride

import (
	"errors"
	"fmt"

	"github.com/example/rider-core/internal/models"
)

var (
	ErrInvalidStateTransition = errors.New("invalid ride state transition")
	ErrLocationsNotSet        = errors.New("pickup and dropoff must both be set")
	ErrInvalidPaymentMethod   = errors.New("payment method must be cash, upi or wallet")
)

// TransitionError reports an out-of-order lifecycle call. It matches
// ErrInvalidStateTransition under errors.Is.
type TransitionError struct {
	From models.RideState
	To   models.RideState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition ride from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
