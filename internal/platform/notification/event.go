// Package notification delivers engine lifecycle events to outbound channels.
// Emitting never blocks or fails the caller; delivery happens on a bounded
// background queue.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	BookingCreated      Kind = "booking.created"
	BookingCancelled    Kind = "booking.cancelled"
	BookingReminder     Kind = "booking.reminder"
	SessionStarted      Kind = "session.started"
	SessionEnded        Kind = "session.ended"
	DocumentationSaved  Kind = "documentation.saved"
	PrescriptionCreated Kind = "prescription.created"
)

// Event is a lifecycle fact about one appointment. It never carries clinical
// content, only identifiers and scheduling data.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Kind          Kind              `json:"kind"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Data          map[string]string `json:"data,omitempty"`
}

// Emitter accepts events fire-and-forget.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// NewEvent fills in the id and timestamp.
func NewEvent(kind Kind, appointmentID, doctorID, patientID uuid.UUID, data map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          kind,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	}
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds lists recorded event kinds in emission order.
func (r *Recorder) Kinds() []Kind {
	evts := r.Events()
	kinds := make([]Kind, len(evts))
	for i, e := range evts {
		kinds[i] = e.Kind
	}
	return kinds
}
