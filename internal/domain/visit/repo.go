package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SessionStore interface {
	// CreateSession fails with apperr.Conflict when the appointment already
	// has a session.
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, appointmentID uuid.UUID) (*Session, error)
	// EndSession fails with apperr.NotFound unless an active session exists.
	EndSession(ctx context.Context, appointmentID uuid.UUID, at time.Time) (*Session, error)
}

type DocumentationStore interface {
	UpsertDocumentation(ctx context.Context, d *Documentation) error
	GetDocumentation(ctx context.Context, appointmentID uuid.UUID) (*Documentation, error)
}

type PrescriptionStore interface {
	CreatePrescription(ctx context.Context, p *Prescription) error
	GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// LatestPrescription returns the most recently created prescription.
	LatestPrescription(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)
	ListPrescriptions(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error)
}

// Transactor groups a ledger transition with the write that accompanies it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
