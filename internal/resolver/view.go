package resolver

import "github.com/example/rider-core/internal/models"

type ViewState string

const (
	ShowingRecent ViewState = "showing_recent"
	Idle          ViewState = "idle"
	Searching     ViewState = "searching"
	Results       ViewState = "results"
	NoResults     ViewState = "no_results"
	Failed        ViewState = "failed"
)

type PinState string

const (
	PinNone      PinState = ""
	PinResolving PinState = "resolving"
	PinResolved  PinState = "resolved"
	PinFailed    PinState = "failed"
)

// Target says which slot a resolved location fills.
type Target string

const (
	TargetPickup  Target = "pickup"
	TargetDropoff Target = "dropoff"
)

func (t Target) Valid() bool { return t == TargetPickup || t == TargetDropoff }

// View is what a search screen renders.
type View struct {
	State       ViewState           `json:"state"`
	Query       string              `json:"query"`
	Suggestions []models.Suggestion `json:"suggestions,omitempty"`
	Recent      []models.Location   `json:"recent_locations,omitempty"`
	Error       string              `json:"error,omitempty"`

	PinState PinState         `json:"pin_state,omitempty"`
	Pinned   *models.Location `json:"pinned,omitempty"`
}

func (v View) clone() View {
	c := v
	if v.Suggestions != nil {
		c.Suggestions = append([]models.Suggestion(nil), v.Suggestions...)
	}
	if v.Recent != nil {
		c.Recent = append([]models.Location(nil), v.Recent...)
	}
	if v.Pinned != nil {
		p := *v.Pinned
		c.Pinned = &p
	}
	return c
}
