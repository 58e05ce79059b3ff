package audit

import (
	"context"
	"time"
)

// Event records one applied mileage correction for the audit trail.
type Event struct {
	EntityID  string    `json:"entity_id"`
	VehicleID string    `json:"vehicle_id"`
	Before    *float64  `json:"before,omitempty"`
	After     *float64  `json:"after,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Sink delivers audit events. Delivery is best effort from the caller's
// point of view: a correction must never fail because its audit record
// could not be delivered.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// NopSink discards every event. Used in tests and in deployments with no
// audit trail configured.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, event Event) error { return nil }
