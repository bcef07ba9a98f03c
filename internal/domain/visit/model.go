package visit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// Session is the clinical encounter of one appointment. EndedAt is nil while
// the session is active.
type Session struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) Active() bool { return s.EndedAt == nil }

// Documentation is the visit note. One per appointment, last write wins.
type Documentation struct {
	AppointmentID  uuid.UUID `json:"appointment_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ChiefComplaint string    `json:"chief_complaint"`
	Diagnosis      string    `json:"diagnosis"`
	Notes          string    `json:"notes"`
	FollowUp       string    `json:"follow_up"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (d *Documentation) Validate() error {
	if strings.TrimSpace(d.ChiefComplaint) == "" && strings.TrimSpace(d.Diagnosis) == "" &&
		strings.TrimSpace(d.Notes) == "" {
		return apperr.Validation("documentation needs a chief complaint, diagnosis or notes")
	}
	return nil
}

type PrescriptionItem struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription is append-only; an appointment may collect several.
type Prescription struct {
	ID            uuid.UUID          `json:"id"`
	AppointmentID uuid.UUID          `json:"appointment_id"`
	DoctorID      uuid.UUID          `json:"doctor_id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	Items         []PrescriptionItem `json:"items"`
	Notes         string             `json:"notes,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

func (p *Prescription) Validate() error {
	if len(p.Items) == 0 {
		return apperr.Validation("a prescription needs at least one item")
	}
	for i, it := range p.Items {
		if strings.TrimSpace(it.Medication) == "" {
			return apperr.Validation("item %d: medication is required", i)
		}
		if strings.TrimSpace(it.Dosage) == "" {
			return apperr.Validation("item %d: dosage is required", i)
		}
	}
	return nil
}
