package mileage

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-mileage/internal/audit"
	"github.com/ukydev/fleet-mileage/internal/models"
)

// TripStore is the storage surface the corrector needs: two read shapes
// and one point write. internal/db's Mongo collection satisfies it.
type TripStore interface {
	FindAllTrips(ctx context.Context) ([]models.Trip, error)
	FindTripsByVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error)
	UpdateCalculatedKmpl(ctx context.Context, id string, kmpl *float64) error
}

// Change records one applied (or attempted) correction, with enough
// context for an external diagnostic analyzer to classify the result.
type Change struct {
	TripID    string   `json:"trip_id"`
	VehicleID string   `json:"vehicle_id"`
	Before    *float64 `json:"before,omitempty"`
	After     *float64 `json:"after,omitempty"`
}

// Report aggregates the outcome of one corrector run.
type Report struct {
	Vehicles  int      `json:"vehicles"`
	Examined  int      `json:"examined"`
	Updated   int      `json:"updated"`
	FailedIDs []string `json:"failed_ids,omitempty"`
	Changes   []Change `json:"changes,omitempty"`
}

// Options tune the corrector's concurrency and write policy. The zero
// value is usable; unset fields fall back to defaults.
type Options struct {
	// Workers bounds how many vehicles are reconciled concurrently.
	Workers int
	// WriteAttempts is the total number of tries per trip update.
	WriteAttempts int
	// RetryBackoff is the initial delay between write attempts; it
	// doubles after each failure.
	RetryBackoff time.Duration
	// VehicleDelay inserts a pause after each vehicle's writes, to
	// respect backend throughput limits. Zero disables it.
	VehicleDelay time.Duration
}

const (
	defaultWorkers       = 4
	defaultWriteAttempts = 3
	defaultRetryBackoff  = 200 * time.Millisecond
)

// Corrector diffs reconciler output against stored trips and applies the
// minimal set of CalculatedKmpl updates. Vehicles are processed by a
// bounded worker pool; writes for a single vehicle stay serialized.
type Corrector struct {
	store TripStore
	sink  audit.Sink
	opts  Options
}

// NewCorrector creates a corrector. sink may be nil when no audit trail
// is configured.
func NewCorrector(store TripStore, sink audit.Sink, opts Options) *Corrector {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.WriteAttempts <= 0 {
		opts.WriteAttempts = defaultWriteAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Corrector{store: store, sink: sink, opts: opts}
}

// Run reconciles and corrects the given vehicles, or the whole fleet when
// no vehicle ids are passed. A read failure aborts the run before any
// write. Per-trip write failures are collected in the report and never
// block the remaining trips. Cancelling the context stops scheduling
// further vehicles; vehicles already being processed run to completion,
// which leaves every trip either corrected or untouched.
func (c *Corrector) Run(ctx context.Context, vehicleIDs ...string) (*Report, error) {
	groups, err := c.loadGroups(ctx, vehicleIDs)
	if err != nil {
		return nil, err
	}

	report := &Report{Vehicles: len(groups)}
	var mu sync.Mutex

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				c.correctVehicle(ctx, id, groups[id], report, &mu)
				if c.opts.VehicleDelay > 0 {
					time.Sleep(c.opts.VehicleDelay)
				}
			}
		}()
	}

schedule:
	for id := range groups {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("correction run cancelled, stopping scheduling")
			break
		}
		select {
		case <-ctx.Done():
			log.WithError(ctx.Err()).Warn("correction run cancelled, stopping scheduling")
			break schedule
		case work <- id:
		}
	}
	close(work)
	wg.Wait()

	return report, nil
}

// loadGroups performs the read phase: one unfiltered read for fleet-wide
// runs, or one read per requested vehicle.
func (c *Corrector) loadGroups(ctx context.Context, vehicleIDs []string) (map[string][]models.Trip, error) {
	if len(vehicleIDs) == 0 {
		trips, err := c.store.FindAllTrips(ctx)
		if err != nil {
			return nil, fmt.Errorf("load trips: %w", err)
		}
		return GroupByVehicle(trips), nil
	}
	groups := make(map[string][]models.Trip, len(vehicleIDs))
	for _, id := range vehicleIDs {
		trips, err := c.store.FindTripsByVehicle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load trips for vehicle %s: %w", id, err)
		}
		groups[id] = trips
	}
	return groups, nil
}

// correctVehicle reconciles one vehicle and writes the trips whose value
// changed, one by one in chronological order.
func (c *Corrector) correctVehicle(ctx context.Context, vehicleID string, trips []models.Trip, report *Report, mu *sync.Mutex) {
	before := make(map[string]*float64, len(trips))
	for _, t := range trips {
		before[t.ID.Hex()] = t.CalculatedKmpl
	}

	reconciled := Reconcile(vehicleID, trips)

	mu.Lock()
	report.Examined += len(reconciled)
	mu.Unlock()

	for _, trip := range reconciled {
		id := trip.ID.Hex()
		prev := before[id]
		if kmplEqual(prev, trip.CalculatedKmpl) {
			continue
		}

		change := Change{TripID: id, VehicleID: vehicleID, Before: prev, After: trip.CalculatedKmpl}
		if err := c.writeWithRetry(ctx, id, trip.CalculatedKmpl); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"vehicle_id": vehicleID,
				"trip_id":    id,
			}).Error("failed to update calculated mileage")
			mu.Lock()
			report.FailedIDs = append(report.FailedIDs, id)
			mu.Unlock()
			continue
		}

		mu.Lock()
		report.Updated++
		report.Changes = append(report.Changes, change)
		mu.Unlock()

		// Best effort: the sink swallows its own failures.
		_ = c.sink.Record(ctx, audit.Event{
			EntityID:  id,
			VehicleID: vehicleID,
			Before:    prev,
			After:     trip.CalculatedKmpl,
			Reason:    "mileage reconciliation",
			At:        time.Now().UTC(),
		})
	}
}

// writeWithRetry issues the point update with bounded attempts and a
// doubling backoff between them.
func (c *Corrector) writeWithRetry(ctx context.Context, tripID string, kmpl *float64) error {
	delay := c.opts.RetryBackoff
	var err error
	for attempt := 1; attempt <= c.opts.WriteAttempts; attempt++ {
		if err = c.store.UpdateCalculatedKmpl(ctx, tripID, kmpl); err == nil {
			return nil
		}
		if attempt < c.opts.WriteAttempts {
			log.WithError(err).WithFields(log.Fields{
				"trip_id": tripID,
				"attempt": attempt,
			}).Warn("trip update failed, retrying")
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

// kmplEqual treats two undefined values as equal and anything else as a
// strict comparison. Values are rounded to two decimals before storage,
// so exact float comparison is sufficient.
func kmplEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
