package audit

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultMaxPending = 256

// RetrySink wraps another sink with bounded retries and a local fallback.
// After the attempts are exhausted the event is logged and kept in a
// bounded in-memory buffer for later inspection. Record always returns
// nil: audit delivery failures stay invisible to the correction path.
type RetrySink struct {
	next       Sink
	attempts   int
	backoff    time.Duration
	maxPending int

	mu      sync.Mutex
	pending []Event
}

// NewRetrySink wraps next with the given total attempt count and initial
// backoff (doubling between attempts).
func NewRetrySink(next Sink, attempts int, backoff time.Duration) *RetrySink {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &RetrySink{
		next:       next,
		attempts:   attempts,
		backoff:    backoff,
		maxPending: defaultMaxPending,
	}
}

// Record tries delivery up to the configured number of attempts, then
// downgrades to local logging. It never returns an error.
func (s *RetrySink) Record(ctx context.Context, event Event) error {
	delay := s.backoff
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.next.Record(ctx, event); err == nil {
			return nil
		}
		if attempt < s.attempts {
			select {
			case <-ctx.Done():
				s.fallback(event, ctx.Err())
				return nil
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	s.fallback(event, err)
	return nil
}

func (s *RetrySink) fallback(event Event, err error) {
	log.WithError(err).WithFields(log.Fields{
		"entity_id":  event.EntityID,
		"vehicle_id": event.VehicleID,
	}).Warn("audit delivery failed, keeping event locally")

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) < s.maxPending {
		s.pending = append(s.pending, event)
	}
}

// Pending returns a copy of the events that could not be delivered.
func (s *RetrySink) Pending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.pending))
	copy(out, s.pending)
	return out
}
