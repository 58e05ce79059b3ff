package mileage

import "github.com/ukydev/fleet-mileage/internal/models"

// TotalFuel returns the total fuel quantity purchased on a trip, in liters.
// Itemized refueling slips take precedence over the legacy scalar field:
// when the trip carries slips whose quantities sum to a positive amount,
// that sum is returned; otherwise the legacy FuelQuantity is used. Missing
// slip quantities count as zero. The result is never negative.
func TotalFuel(trip models.Trip) float64 {
	var sum float64
	for _, slip := range trip.Refuelings {
		if slip.FuelQuantity > 0 {
			sum += slip.FuelQuantity
		}
	}
	if sum > 0 {
		return sum
	}
	if trip.FuelQuantity > 0 {
		return trip.FuelQuantity
	}
	return 0
}
