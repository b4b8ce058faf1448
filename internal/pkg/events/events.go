package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Domain event types consumed by the notification service.
const (
	EnrollmentActivated = "enrollment.activated"
	EnrollmentCompleted = "enrollment.completed"
	CredentialIssued    = "credential.issued"
	ProofSubmitted      = "payment_proof.submitted"
	ProofDecided        = "payment_proof.decided"
	GatewaySettled      = "gateway.settled"
	GatewayForged       = "gateway.signature_mismatch"
)

// Event is the envelope written to the event stream.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(eventType, key string, data interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers domain events. Publishing is best effort: failures are
// logged by the implementation and never fail the business operation.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}

func (Noop) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
