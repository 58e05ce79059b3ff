package mileage

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-mileage/internal/models"
)

// Reconcile recomputes CalculatedKmpl for every trip of one vehicle using
// the tank-to-tank method. The input may contain trips of other vehicles;
// they are ignored. The returned slice holds the vehicle's trips in
// chronological order with corrected values, including trips whose value
// did not change (diffing is the corrector's job).
//
// Rules:
//   - A trip flagged as a refueling with a positive fuel quantity becomes
//     the new anchor. Its efficiency is the distance since the previous
//     anchor's end odometer (or its own odometer span when it is the first
//     fill) divided by its fuel, rounded to two decimals, and only assigned
//     when that distance is strictly positive. The trip anchors even when
//     no value could be assigned, so successors inherit the undefined
//     result rather than a stale figure.
//   - Every other trip inherits the current anchor's value, which is nil
//     until the first anchor appears.
//
// Non-monotonic odometers yield a non-positive distance and therefore an
// unset value; the reconciler never assigns zero or a negative efficiency.
func Reconcile(vehicleID string, trips []models.Trip) []models.Trip {
	own := make([]models.Trip, 0, len(trips))
	for _, t := range trips {
		if t.VehicleID == vehicleID {
			own = append(own, t)
		}
	}
	sortTrips(own)

	var lastRefuel *models.Trip
	for i := range own {
		trip := &own[i]
		if trip.TripEndDate.IsZero() {
			// Malformed record: no usable position in the timeline. Treat
			// as a non-refueling trip with no distance contribution.
			log.WithFields(log.Fields{
				"vehicle_id": vehicleID,
				"trip_id":    trip.ID.Hex(),
			}).Warn("trip has no end date, skipping reconciliation for it")
			trip.CalculatedKmpl = anchorValue(lastRefuel)
			continue
		}

		fuel := TotalFuel(*trip)
		if trip.RefuelingDone && fuel > 0 {
			var distance float64
			if lastRefuel == nil {
				distance = trip.Distance()
			} else {
				distance = trip.EndKm - lastRefuel.EndKm
			}
			trip.CalculatedKmpl = nil
			if distance > 0 {
				kmpl := round2(distance / fuel)
				trip.CalculatedKmpl = &kmpl
			}
			lastRefuel = trip
		} else {
			trip.CalculatedKmpl = anchorValue(lastRefuel)
		}
	}
	return own
}

// GroupByVehicle splits an unordered trip set into per-vehicle slices.
// Each vehicle's reconciliation is independent; modeling the grouping as
// an explicit step keeps the reconciler itself stateless.
func GroupByVehicle(trips []models.Trip) map[string][]models.Trip {
	groups := make(map[string][]models.Trip)
	for _, t := range trips {
		groups[t.VehicleID] = append(groups[t.VehicleID], t)
	}
	return groups
}

// sortTrips orders trips ascending by end date. Trips sharing an end date
// are ordered by id hex so the reconciliation order is deterministic
// rather than an accident of sort stability.
func sortTrips(trips []models.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].TripEndDate.Equal(trips[j].TripEndDate) {
			return trips[i].ID.Hex() < trips[j].ID.Hex()
		}
		return trips[i].TripEndDate.Before(trips[j].TripEndDate)
	})
}

// anchorValue copies the anchor's value so later mutation of one trip's
// pointer can never leak into another trip.
func anchorValue(anchor *models.Trip) *float64 {
	if anchor == nil || anchor.CalculatedKmpl == nil {
		return nil
	}
	v := *anchor.CalculatedKmpl
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
