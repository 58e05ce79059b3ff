package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Trip represents a single vehicle journey bounded by two odometer readings.
// CalculatedKmpl is the reconciled tank-to-tank efficiency for the trip; a
// nil value means the figure could not be determined and must stay unset.
type Trip struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID      string             `json:"vehicle_id" bson:"vehicle_id"`
	DriverID       string             `json:"driver_id" bson:"driver_id"`
	TripEndDate    time.Time          `json:"trip_end_date" bson:"trip_end_date"`
	StartKm        float64            `json:"start_km" bson:"start_km"` // odometer at departure, in kilometers
	EndKm          float64            `json:"end_km" bson:"end_km"`     // odometer at arrival, in kilometers
	RefuelingDone  bool               `json:"refueling_done" bson:"refueling_done"`
	FuelQuantity   float64            `json:"fuel_quantity" bson:"fuel_quantity"` // legacy single quantity, in liters
	Refuelings     []Refueling        `json:"refuelings,omitempty" bson:"refuelings,omitempty"`
	CalculatedKmpl *float64           `json:"calculated_kmpl,omitempty" bson:"calculated_kmpl,omitempty"`
	Notes          string             `json:"notes" bson:"notes"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

// Refueling is one itemized fuel-purchase slip attached to a trip. A trip
// may carry zero, one, or many; when any are present their summed quantity
// supersedes the legacy FuelQuantity scalar.
type Refueling struct {
	FuelQuantity  float64 `json:"fuel_quantity" bson:"fuel_quantity"` // in liters
	PricePerLiter float64 `json:"price_per_liter" bson:"price_per_liter"`
	ReceiptNo     string  `json:"receipt_no" bson:"receipt_no"`
	Station       string  `json:"station" bson:"station"`
}

// Distance returns the odometer delta for the trip. It may be negative when
// readings are non-monotonic; callers decide how to treat that.
func (t *Trip) Distance() float64 {
	return t.EndKm - t.StartKm
}
