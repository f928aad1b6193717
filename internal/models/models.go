package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a resolved geographic point. Two locations with the same
// non-empty Address are considered the same place.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Name      string  `json:"name,omitempty"`
}

func (l Location) Coord() Coord { return Coord{Lat: l.Latitude, Lon: l.Longitude} }

// SameAddress reports whether both locations carry the same non-empty address.
func (l Location) SameAddress(o Location) bool {
	return l.Address != "" && l.Address == o.Address
}

// Suggestion is an unresolved place search result.
type Suggestion struct {
	ID            string `json:"id"`
	PrimaryText   string `json:"primary_text"`
	SecondaryText string `json:"secondary_text"`
}

type FareEstimate struct {
	VehicleClass string  `json:"vehicle_class"`
	DistanceKm   float64 `json:"distance_km"`
	DurationMin  float64 `json:"duration_min"`
	Distance     string  `json:"distance"`
	Duration     string  `json:"duration"`
	BaseFare     int64   `json:"base_fare"`
	DistanceFare int64   `json:"distance_fare"`
	TimeFare     int64   `json:"time_fare"`
	Fare         int64   `json:"fare"`
	Currency     string  `json:"currency"`
}

type Driver struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Loc           Coord     `json:"loc"`
	Rating        float64   `json:"rating"` // 0..5
	Online        bool      `json:"online"`
	VehicleModel  string    `json:"vehicle_model,omitempty"`
	VehicleNumber string    `json:"vehicle_number,omitempty"`
	PhotoRef      string    `json:"photo_ref,omitempty"`
	Updated       time.Time `json:"updated"`
}

type DriverAssignment struct {
	DriverID      string  `json:"driver_id"`
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	VehicleModel  string  `json:"vehicle_model"`
	VehicleNumber string  `json:"vehicle_number"`
	PhotoRef      string  `json:"photo_ref"`
	ETAMinutes    int     `json:"eta_minutes"`
	DistanceKm    float64 `json:"distance_km"`
	Location      Coord   `json:"location"`
}

// Feedback is what the rider leaves after a completed trip.
type Feedback struct {
	Rating      int       `json:"rating"`
	Tags        []string  `json:"tags,omitempty"`
	Tip         int64     `json:"tip"`
	SubmittedAt time.Time `json:"submitted_at"`
}
