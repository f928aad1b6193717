package models

import "time"

type RideState string

const (
	RideIdle           RideState = "idle"
	RideEstimateReady  RideState = "estimate_ready"
	RideConfirmed      RideState = "confirmed"
	RideMatchingDriver RideState = "matching_driver"
	RideDriverAssigned RideState = "driver_assigned"
	RidePickupPending  RideState = "pickup_pending"
	RideInProgress     RideState = "in_progress"
	RideCompleted      RideState = "completed"
	RideCancelled      RideState = "cancelled"
)

// validTransitions is the ride state machine. Every non-terminal state may
// also move to RideCancelled.
var validTransitions = map[RideState][]RideState{
	RideIdle:           {RideEstimateReady, RideCancelled},
	RideEstimateReady:  {RideConfirmed, RideCancelled},
	RideConfirmed:      {RideMatchingDriver, RideCancelled},
	RideMatchingDriver: {RideDriverAssigned, RideCancelled},
	RideDriverAssigned: {RidePickupPending, RideCancelled},
	RidePickupPending:  {RideInProgress, RideCancelled},
	RideInProgress:     {RideCompleted, RideCancelled},
	RideCompleted:      {},
	RideCancelled:      {},
}

func (s RideState) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s RideState) CanTransitionTo(target RideState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RideState) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Next is the single legal forward state, or "" for terminal states.
func (s RideState) Next() RideState {
	for _, t := range validTransitions[s] {
		if t != RideCancelled {
			return t
		}
	}
	return ""
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentUPI    PaymentMethod = "upi"
	PaymentWallet PaymentMethod = "wallet"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentUPI, PaymentWallet:
		return true
	}
	return false
}

// Ride is a point-in-time copy of one ride lifecycle.
type Ride struct {
	ID              string            `json:"id"`
	State           RideState         `json:"state"`
	Pickup          Location          `json:"pickup"`
	Dropoff         Location          `json:"dropoff"`
	VehicleClass    string            `json:"vehicle_class,omitempty"`
	Estimate        *FareEstimate     `json:"estimate,omitempty"`
	PaymentMethod   PaymentMethod     `json:"payment_method,omitempty"`
	Driver          *DriverAssignment `json:"driver,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	CancellationFee float64           `json:"cancellation_fee,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
}

// HistoryEntry is a completed ride plus whatever the rider said about it.
type HistoryEntry struct {
	Ride     Ride      `json:"ride"`
	Feedback *Feedback `json:"feedback,omitempty"`
}
