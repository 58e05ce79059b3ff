package mileage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-mileage/internal/audit"
	"github.com/ukydev/fleet-mileage/internal/models"
)

// fakeStore is an in-memory TripStore with per-trip failure injection.
type fakeStore struct {
	mu       sync.Mutex
	trips    map[string]models.Trip
	failures map[string]int // writes left to fail per trip id
	readErr  error
	writes   int
}

func newFakeStore(trips ...models.Trip) *fakeStore {
	s := &fakeStore{trips: make(map[string]models.Trip), failures: make(map[string]int)}
	for _, t := range trips {
		s.trips[t.ID.Hex()] = t
	}
	return s
}

func (s *fakeStore) FindAllTrips(ctx context.Context) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]models.Trip, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) FindTripsByVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	all, err := s.FindAllTrips(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Trip
	for _, t := range all {
		if t.VehicleID == vehicleID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCalculatedKmpl(ctx context.Context, id string, kmpl *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failures[id] > 0 {
		s.failures[id]--
		return errors.New("write refused")
	}
	trip, ok := s.trips[id]
	if !ok {
		return errors.New("trip not found")
	}
	trip.CalculatedKmpl = kmpl
	s.trips[id] = trip
	return nil
}

func (s *fakeStore) kmpl(id string) *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trips[id]
	return t.CalculatedKmpl
}

// recordingSink captures audit events and can be made to fail.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Record(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func fastOpts() Options {
	return Options{Workers: 2, WriteAttempts: 2, RetryBackoff: time.Millisecond}
}

func scenarioTrips() []models.Trip {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []models.Trip{
		makeTrip("V", base, 1000, 1100, true, 10),
		makeTrip("V", base.Add(day), 1100, 1250, false, 0),
		makeTrip("V", base.Add(2*day), 1250, 1450, true, 20),
	}
}

func TestCorrectorAppliesUpdates(t *testing.T) {
	trips := scenarioTrips()
	store := newFakeStore(trips...)
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Vehicles)
	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, 3, report.Updated)
	assert.Empty(t, report.FailedIDs)

	require.NotNil(t, store.kmpl(trips[0].ID.Hex()))
	assert.Equal(t, 10.00, *store.kmpl(trips[0].ID.Hex()))
	require.NotNil(t, store.kmpl(trips[1].ID.Hex()))
	assert.Equal(t, 10.00, *store.kmpl(trips[1].ID.Hex()))
	require.NotNil(t, store.kmpl(trips[2].ID.Hex()))
	assert.Equal(t, 17.50, *store.kmpl(trips[2].ID.Hex()))
}

func TestCorrectorIdempotent(t *testing.T) {
	store := newFakeStore(scenarioTrips()...)
	corrector := NewCorrector(store, nil, fastOpts())

	first, err := corrector.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.Updated)
	writesAfterFirst := store.writes

	second, err := corrector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated, "second run on corrected data must update nothing")
	assert.Equal(t, writesAfterFirst, store.writes, "no writes on the second run")
}

func TestCorrectorClearsStaleValue(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	stale := 12.0
	trip := makeTrip("V", base, 1450, 1450, true, 5) // zero span: value must end up unset
	trip.CalculatedKmpl = &stale
	store := newFakeStore(trip)
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Nil(t, store.kmpl(trip.ID.Hex()))
}

func TestCorrectorPartialWriteFailure(t *testing.T) {
	trips := scenarioTrips()
	store := newFakeStore(trips...)
	failing := trips[1].ID.Hex()
	store.failures[failing] = 2 // exhausts both attempts
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background())
	require.NoError(t, err, "a per-trip write failure must not abort the run")

	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, []string{failing}, report.FailedIDs)
	assert.Nil(t, store.kmpl(failing), "failed trip keeps its stored value")
	require.NotNil(t, store.kmpl(trips[2].ID.Hex()), "later trips still corrected")
}

func TestCorrectorRetryRecovers(t *testing.T) {
	trips := scenarioTrips()
	store := newFakeStore(trips...)
	store.failures[trips[0].ID.Hex()] = 1 // first attempt fails, retry succeeds
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updated)
	assert.Empty(t, report.FailedIDs)
}

func TestCorrectorReadFailureIsFatal(t *testing.T) {
	store := newFakeStore(scenarioTrips()...)
	store.readErr = errors.New("connection reset")
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, report)
	assert.Zero(t, store.writes, "no partial reconciliation on a read failure")
}

func TestCorrectorSingleVehicle(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	other := makeTrip("W", base, 0, 100, true, 10)
	trips := append(scenarioTrips(), other)
	store := newFakeStore(trips...)
	corrector := NewCorrector(store, nil, fastOpts())

	report, err := corrector.Run(context.Background(), "V")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Vehicles)
	assert.Equal(t, 3, report.Updated)
	assert.Nil(t, store.kmpl(other.ID.Hex()), "other vehicle untouched")
}

func TestCorrectorEmitsAuditEvents(t *testing.T) {
	trips := scenarioTrips()
	store := newFakeStore(trips...)
	sink := &recordingSink{err: errors.New("broker down")}
	corrector := NewCorrector(store, sink, fastOpts())

	report, err := corrector.Run(context.Background())
	require.NoError(t, err, "audit failures must never affect corrections")
	assert.Equal(t, 3, report.Updated)
	assert.Equal(t, 3, sink.count())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		assert.Equal(t, "V", e.VehicleID)
		assert.Nil(t, e.Before)
		assert.NotNil(t, e.After)
		assert.Equal(t, "mileage reconciliation", e.Reason)
	}
}

func TestCorrectorCancelledContext(t *testing.T) {
	store := newFakeStore(scenarioTrips()...)
	corrector := NewCorrector(store, nil, fastOpts())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := corrector.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Updated, "no vehicle scheduled after cancellation")
}

func TestKmplEqual(t *testing.T) {
	a, b := 10.0, 10.0
	c := 17.5
	assert.True(t, kmplEqual(nil, nil))
	assert.True(t, kmplEqual(&a, &b))
	assert.False(t, kmplEqual(&a, &c))
	assert.False(t, kmplEqual(&a, nil))
	assert.False(t, kmplEqual(nil, &a))
}
