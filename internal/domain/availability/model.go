package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConsultationType string

const (
	InPerson ConsultationType = "in_person"
	Remote   ConsultationType = "remote"
)

func (c ConsultationType) Valid() bool {
	return c == InPerson || c == Remote
}

func ParseConsultationType(s string) (ConsultationType, error) {
	c := ConsultationType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown consultation type %q", s)
	}
	return c, nil
}

// Slot durations accepted from templates, exceptions and callers.
const (
	MinSlotMinutes = 5
	MaxSlotMinutes = 240
)

func ValidSlotMinutes(m int) bool {
	return m >= MinSlotMinutes && m <= MaxSlotMinutes
}

// Doctor is the registry entry that makes a doctor bookable. A doctor may
// exist with an empty template.
type Doctor struct {
	ID                 uuid.UUID `json:"id"`
	DisplayName        string    `json:"display_name"`
	DefaultSlotMinutes int       `json:"default_slot_minutes"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TemplateEntry is one recurring weekly window.
type TemplateEntry struct {
	ID               uuid.UUID        `json:"id"`
	DoctorID         uuid.UUID        `json:"doctor_id"`
	DayOfWeek        time.Weekday     `json:"day_of_week"`
	Start            TimeOfDay        `json:"start_time"`
	End              TimeOfDay        `json:"end_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
	SlotMinutes      int              `json:"slot_duration_minutes"`
}

type ExceptionKind string

const (
	Blocked       ExceptionKind = "blocked"
	ModifiedHours ExceptionKind = "modified_hours"
	AddedHours    ExceptionKind = "added_hours"
)

func (k ExceptionKind) Valid() bool {
	switch k {
	case Blocked, ModifiedHours, AddedHours:
		return true
	}
	return false
}

// Window is an exception's time range. A zero SlotMinutes inherits the
// template's duration for that weekday and type.
type Window struct {
	Start            TimeOfDay        `json:"start_time"`
	End              TimeOfDay        `json:"end_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
	SlotMinutes      int              `json:"slot_duration_minutes,omitempty"`
}

// Exception overrides the template for one date. At most one per doctor and
// date.
type Exception struct {
	ID        uuid.UUID     `json:"id"`
	DoctorID  uuid.UUID     `json:"doctor_id"`
	Date      Date          `json:"date"`
	Kind      ExceptionKind `json:"kind"`
	Windows   []Window      `json:"windows"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TimeSlot is derived on demand and never stored.
type TimeSlot struct {
	DoctorID         uuid.UUID        `json:"doctor_id"`
	Date             Date             `json:"date"`
	Start            TimeOfDay        `json:"start_time"`
	End              TimeOfDay        `json:"end_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
}

func (s TimeSlot) Minutes() int { return int(s.End - s.Start) }

// BookedInterval is an occupied range of a doctor's day, without the patient.
type BookedInterval struct {
	Start            TimeOfDay        `json:"start_time"`
	End              TimeOfDay        `json:"end_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
}
