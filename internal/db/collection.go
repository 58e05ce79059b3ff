package db

import (
	"context"

	"github.com/ukydev/fleet-mileage/internal/models"
)

// TripCollection defines the interface for trip data operations. The
// reconciliation engine needs two read shapes and one point write; insert
// exists for the trip-entry workflow and for seeding tests.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip models.Trip) error
	FindAllTrips(ctx context.Context) ([]models.Trip, error)
	FindTripsByVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error)
	UpdateCalculatedKmpl(ctx context.Context, id string, kmpl *float64) error
}

// UserCollection defines the interface for the user operations the login
// path needs.
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}
