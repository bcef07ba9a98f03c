package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/internal/platform/notification"
)

// CancelPolicy says which parties on a record may cancel it. Admins always
// may.
type CancelPolicy struct {
	PatientMayCancel bool
	DoctorMayCancel  bool
}

type Service struct {
	ledger         Ledger
	resolver       *availability.Resolver
	emitter        notification.Emitter
	policy         CancelPolicy
	bookingTimeout time.Duration
	logger         zerolog.Logger
}

func NewService(ledger Ledger, resolver *availability.Resolver, emitter notification.Emitter, policy CancelPolicy, bookingTimeout time.Duration, logger zerolog.Logger) *Service {
	if emitter == nil {
		emitter = notification.NopEmitter{}
	}
	return &Service{
		ledger:         ledger,
		resolver:       resolver,
		emitter:        emitter,
		policy:         policy,
		bookingTimeout: bookingTimeout,
		logger:         logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) validate(caller auth.Principal, req *BookRequest) error {
	switch caller.Role {
	case auth.RolePatient:
		if req.PatientID == uuid.Nil {
			req.PatientID = caller.ID
		}
		if req.PatientID != caller.ID {
			return apperr.Validation("patients may only book for themselves")
		}
	case auth.RoleAdmin:
		if req.PatientID == uuid.Nil {
			return apperr.Validation("patient_id is required")
		}
	default:
		return apperr.Forbidden("only patients and admins may book appointments")
	}
	if req.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if req.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	if !req.Start.Valid() || req.Start >= availability.EndOfDay {
		return apperr.Validation("start_time must be within the day")
	}
	if !req.ConsultationType.Valid() {
		return apperr.Validation("unknown consultation type %q", req.ConsultationType)
	}
	if req.Duration != 0 && !availability.ValidSlotMinutes(req.Duration) {
		return apperr.Validation("duration must be between %d and %d minutes",
			availability.MinSlotMinutes, availability.MaxSlotMinutes)
	}
	return nil
}

// Book reserves the requested interval. The pre-checks against the current
// availability reject stale requests early; the ledger insert decides races.
func (s *Service) Book(ctx context.Context, caller auth.Principal, req BookRequest) (*Booking, error) {
	if err := s.validate(caller, &req); err != nil {
		return nil, err
	}

	avail, err := s.resolver.GetAvailableSlots(ctx, availability.SlotQuery{
		DoctorID: req.DoctorID,
		Date:     req.Date,
		Type:     req.ConsultationType,
		Duration: req.Duration,
	})
	if err != nil {
		return nil, err
	}

	end := requestedEnd(req, avail)
	if end > availability.EndOfDay {
		return nil, apperr.Validation("appointment must end by 24:00")
	}
	log := s.logger.With().
		Str("doctor_id", req.DoctorID.String()).
		Str("date", req.Date.String()).
		Str("start", req.Start.String()).
		Str("end", end.String()).
		Logger()

	for _, b := range avail.Booked {
		if availability.Overlaps(req.Start, end, b.Start, b.End) {
			log.Info().Msg("booking.conflict")
			return nil, apperr.SlotConflict("%s %s-%s is already booked", req.Date, b.Start, b.End)
		}
	}
	if !offered(avail.Slots, req.Start, end) {
		return nil, apperr.Validation("%s %s-%s is not an available %s slot", req.Date, req.Start, end, req.ConsultationType)
	}

	b := &Booking{
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		Date:             req.Date,
		Start:            req.Start,
		End:              end,
		ConsultationType: req.ConsultationType,
	}
	if err := s.insert(ctx, b); err != nil {
		if apperr.KindOf(err) == apperr.KindSlotConflict {
			log.Info().Msg("booking.conflict")
		} else {
			log.Error().Err(err).Msg("booking insert failed")
		}
		return nil, err
	}

	log.Info().Str("appointment_id", b.ID.String()).Msg("booking.created")
	s.emitter.Emit(ctx, notification.NewEvent(notification.BookingCreated, b.ID, b.DoctorID, b.PatientID, map[string]string{
		"date":              b.Date.String(),
		"start":             b.Start.String(),
		"end":               b.End.String(),
		"consultation_type": string(b.ConsultationType),
	}))
	return b, nil
}

func (s *Service) insert(ctx context.Context, b *Booking) error {
	if s.bookingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.bookingTimeout)
		defer cancel()
	}
	err := s.ledger.InsertIfFree(ctx, b)
	if err != nil && apperr.KindOf(err) == apperr.KindInternal &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return apperr.Transient(err, "insert booking")
	}
	return err
}

// requestedEnd derives the end of the requested interval: an explicit
// duration wins, then the generated slot starting at Start, then the
// doctor's default slot length.
func requestedEnd(req BookRequest, avail *availability.Availability) availability.TimeOfDay {
	if req.Duration > 0 {
		return req.Start.Add(req.Duration)
	}
	for _, slot := range avail.Slots {
		if slot.Start == req.Start {
			return slot.End
		}
	}
	minutes := availability.MinSlotMinutes
	if avail.Doctor != nil && avail.Doctor.DefaultSlotMinutes > 0 {
		minutes = avail.Doctor.DefaultSlotMinutes
	}
	return req.Start.Add(minutes)
}

func offered(slots []availability.TimeSlot, start, end availability.TimeOfDay) bool {
	for _, slot := range slots {
		if slot.Start == start && slot.End == end {
			return true
		}
	}
	return false
}

// Cancel releases a booked appointment per the configured policy.
func (s *Service) Cancel(ctx context.Context, caller auth.Principal, id uuid.UUID, reason string) (*Booking, error) {
	b, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canCancel(caller, b); err != nil {
		return nil, err
	}
	b, err = s.ledger.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("by", caller.String()).
		Msg("booking.cancelled")
	s.emitter.Emit(ctx, notification.NewEvent(notification.BookingCancelled, b.ID, b.DoctorID, b.PatientID, map[string]string{
		"date":   b.Date.String(),
		"start":  b.Start.String(),
		"reason": reason,
	}))
	return b, nil
}

func (s *Service) canCancel(caller auth.Principal, b *Booking) error {
	switch {
	case caller.IsAdmin():
		return nil
	case caller.IsPatient(b.PatientID):
		if s.policy.PatientMayCancel {
			return nil
		}
		return apperr.Forbidden("patients may not cancel appointments")
	case caller.IsDoctor(b.DoctorID):
		if s.policy.DoctorMayCancel {
			return nil
		}
		return apperr.Forbidden("doctors may not cancel appointments")
	}
	return apperr.Forbidden("not a party to appointment %s", b.ID)
}

// Get returns an appointment to the doctor or patient on it.
func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Booking, error) {
	b, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !b.Involves(caller) {
		return nil, apperr.Forbidden("not a party to appointment %s", id)
	}
	return b, nil
}

// List returns the caller's own appointments. Admins must filter by doctor or
// patient.
func (s *Service) List(ctx context.Context, caller auth.Principal, f ListFilter, limit, offset int) ([]*Booking, int, error) {
	switch caller.Role {
	case auth.RolePatient:
		f = ListFilter{PatientID: caller.ID, DoctorID: f.DoctorID}
	case auth.RoleDoctor:
		f = ListFilter{DoctorID: caller.ID, PatientID: f.PatientID}
	case auth.RoleAdmin:
		if f.DoctorID == uuid.Nil && f.PatientID == uuid.Nil {
			return nil, 0, apperr.Validation("doctor_id or patient_id is required")
		}
	default:
		return nil, 0, apperr.Forbidden("unknown role %q", caller.Role)
	}
	items, total, err := s.ledger.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Booking{}
	}
	return items, total, nil
}
