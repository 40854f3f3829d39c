package models

import "time"

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
)

// Trip represents a single revenue-earning run of a vehicle.
// TotalFreight is the trip's revenue; a nil value is treated as zero by the ledger.
// DriverBata is a fixed driver allowance that the ledger books as an expense.
type Trip struct {
	ID           string     `json:"id" bson:"_id,omitempty"`
	VehicleID    string     `json:"vehicle_id" bson:"vehicle_id"`
	FromLocation string     `json:"from_location" bson:"from_location"`
	ToLocation   string     `json:"to_location" bson:"to_location"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	TotalFreight *float64   `json:"total_freight,omitempty" bson:"total_freight,omitempty"`
	Status       TripStatus `json:"status" bson:"status"`
	DriverName   string     `json:"driver_name,omitempty" bson:"driver_name,omitempty"`
	DriverBata   *float64   `json:"driver_bata,omitempty" bson:"driver_bata,omitempty"`
}

// IsCompleted reports whether the trip is closed.
func (t Trip) IsCompleted() bool {
	return t.Status == TripCompleted
}
