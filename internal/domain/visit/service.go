package visit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/domain/booking"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/internal/platform/notification"
)

// Service drives an appointment through session, documentation and
// prescription. Writes belong to the appointment's doctor; reads to the
// doctor or patient on it.
type Service struct {
	ledger        booking.Ledger
	sessions      SessionStore
	docs          DocumentationStore
	prescriptions PrescriptionStore
	tx            Transactor
	emitter       notification.Emitter
	now           func() time.Time
	logger        zerolog.Logger
}

func NewService(ledger booking.Ledger, sessions SessionStore, docs DocumentationStore, prescriptions PrescriptionStore, tx Transactor, emitter notification.Emitter, logger zerolog.Logger) *Service {
	if emitter == nil {
		emitter = notification.NopEmitter{}
	}
	return &Service{
		ledger:        ledger,
		sessions:      sessions,
		docs:          docs,
		prescriptions: prescriptions,
		tx:            tx,
		emitter:       emitter,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With().Str("component", "visit").Logger(),
	}
}

func (s *Service) ownedAppointment(ctx context.Context, caller auth.Principal, id uuid.UUID) (*booking.Booking, error) {
	b, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsDoctor(b.DoctorID) {
		return nil, apperr.Forbidden("only the appointment's doctor may do this")
	}
	return b, nil
}

func (s *Service) readableAppointment(ctx context.Context, caller auth.Principal, id uuid.UUID) (*booking.Booking, error) {
	b, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Involves(caller) {
		return nil, apperr.Forbidden("not a party to appointment %s", id)
	}
	return b, nil
}

// notCancelled guards documentation, which may be written before, during or
// after the session.
func notCancelled(b *booking.Booking) error {
	if b.State == booking.StateCancelled {
		return apperr.Conflict("appointment %s is cancelled", b.ID)
	}
	return nil
}

// sessionStarted is the precondition for prescriptions.
func sessionStarted(b *booking.Booking) error {
	switch b.State {
	case booking.StateSessionActive, booking.StateSessionEnded:
		return nil
	}
	return apperr.Conflict("appointment %s is %s; start the session first", b.ID, b.State)
}

func (s *Service) emit(ctx context.Context, kind notification.Kind, b *booking.Booking, data map[string]string) {
	s.emitter.Emit(ctx, notification.NewEvent(kind, b.ID, b.DoctorID, b.PatientID, data))
}

// -- Sessions --

func (s *Service) StartSession(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) (*Session, error) {
	b, err := s.ownedAppointment(ctx, caller, appointmentID)
	if err != nil {
		return nil, err
	}
	sess := &Session{AppointmentID: b.ID, DoctorID: b.DoctorID, StartedAt: s.now()}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.TransitionState(ctx, b.ID, booking.StateBooked, booking.StateSessionActive); err != nil {
			return err
		}
		return s.sessions.CreateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", b.ID.String()).Msg("session.started")
	s.emit(ctx, notification.SessionStarted, b, nil)
	return sess, nil
}

func (s *Service) EndSession(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) (*Session, error) {
	b, err := s.ownedAppointment(ctx, caller, appointmentID)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.sessions.EndSession(ctx, b.ID, s.now()); err != nil {
			return err
		}
		_, err = s.ledger.TransitionState(ctx, b.ID, booking.StateSessionActive, booking.StateSessionEnded)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", b.ID.String()).
		Dur("duration", sess.EndedAt.Sub(sess.StartedAt)).
		Msg("session.ended")
	s.emit(ctx, notification.SessionEnded, b, nil)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) (*Session, error) {
	if _, err := s.readableAppointment(ctx, caller, appointmentID); err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, appointmentID)
}

// -- Documentation --

// SaveDocumentation creates or replaces the visit note. It is accepted in any
// state except cancelled.
func (s *Service) SaveDocumentation(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID, d *Documentation) error {
	b, err := s.ownedAppointment(ctx, caller, appointmentID)
	if err != nil {
		return err
	}
	if err := notCancelled(b); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	d.AppointmentID, d.DoctorID, d.PatientID = b.ID, b.DoctorID, b.PatientID
	if err := s.docs.UpsertDocumentation(ctx, d); err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", b.ID.String()).Msg("documentation.saved")
	s.emit(ctx, notification.DocumentationSaved, b, nil)
	return nil
}

func (s *Service) GetDocumentation(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) (*Documentation, error) {
	if _, err := s.readableAppointment(ctx, caller, appointmentID); err != nil {
		return nil, err
	}
	return s.docs.GetDocumentation(ctx, appointmentID)
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID, p *Prescription) error {
	b, err := s.ownedAppointment(ctx, caller, appointmentID)
	if err != nil {
		return err
	}
	if err := sessionStarted(b); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.Nil
	p.AppointmentID, p.DoctorID, p.PatientID = b.ID, b.DoctorID, b.PatientID
	if err := s.prescriptions.CreatePrescription(ctx, p); err != nil {
		return err
	}
	s.logger.Info().
		Str("appointment_id", b.ID.String()).
		Str("prescription_id", p.ID.String()).
		Int("items", len(p.Items)).
		Msg("prescription.created")
	s.emit(ctx, notification.PrescriptionCreated, b, map[string]string{
		"prescription_id": p.ID.String(),
		"item_count":      strconv.Itoa(len(p.Items)),
	})
	return nil
}

// GetPrescription authorizes against the parties copied onto the
// prescription itself.
func (s *Service) GetPrescription(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsDoctor(p.DoctorID) && !caller.IsPatient(p.PatientID) {
		return nil, apperr.Forbidden("not a party to prescription %s", id)
	}
	return p, nil
}

func (s *Service) GetLatestPrescription(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) (*Prescription, error) {
	if _, err := s.readableAppointment(ctx, caller, appointmentID); err != nil {
		return nil, err
	}
	return s.prescriptions.LatestPrescription(ctx, appointmentID)
}

func (s *Service) ListPrescriptions(ctx context.Context, caller auth.Principal, appointmentID uuid.UUID) ([]*Prescription, error) {
	if _, err := s.readableAppointment(ctx, caller, appointmentID); err != nil {
		return nil, err
	}
	return s.prescriptions.ListPrescriptions(ctx, appointmentID)
}
