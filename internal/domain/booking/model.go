package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/platform/auth"
)

// Status decides whether a record occupies the doctor's calendar.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// State is the appointment's position in the clinical workflow.
type State string

const (
	StateBooked        State = "booked"
	StateSessionActive State = "session_active"
	StateSessionEnded  State = "session_ended"
	StateCancelled     State = "cancelled"
)

// Booking is a reservation in the ledger. The appointment id is the booking
// id.
type Booking struct {
	ID                 uuid.UUID                     `json:"id"`
	DoctorID           uuid.UUID                     `json:"doctor_id"`
	PatientID          uuid.UUID                     `json:"patient_id"`
	Date               availability.Date             `json:"date"`
	Start              availability.TimeOfDay        `json:"start_time"`
	End                availability.TimeOfDay        `json:"end_time"`
	ConsultationType   availability.ConsultationType `json:"consultation_type"`
	Status             Status                        `json:"status"`
	State              State                         `json:"state"`
	CancellationReason string                        `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time                     `json:"created_at"`
	UpdatedAt          time.Time                     `json:"updated_at"`
}

func (b *Booking) Interval() availability.BookedInterval {
	return availability.BookedInterval{Start: b.Start, End: b.End, ConsultationType: b.ConsultationType}
}

// Overlaps reports whether b occupies any part of [start,end) on its date.
func (b *Booking) Overlaps(start, end availability.TimeOfDay) bool {
	return availability.Overlaps(b.Start, b.End, start, end)
}

// Involves reports whether p is the doctor or patient on the record.
func (b *Booking) Involves(p auth.Principal) bool {
	return p.IsDoctor(b.DoctorID) || p.IsPatient(b.PatientID)
}

// BookRequest asks for one interval of a doctor's day.
type BookRequest struct {
	DoctorID         uuid.UUID                     `json:"doctor_id"`
	PatientID        uuid.UUID                     `json:"patient_id"`
	Date             availability.Date             `json:"date"`
	Start            availability.TimeOfDay        `json:"start_time"`
	ConsultationType availability.ConsultationType `json:"consultation_type"`
	// Duration in minutes. Zero takes the length of the generated slot that
	// starts at Start.
	Duration int `json:"duration_minutes,omitempty"`
}

// ListFilter narrows appointment listings. At least one id is set.
type ListFilter struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}
