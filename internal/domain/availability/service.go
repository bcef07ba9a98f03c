package availability

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
)

// Service manages the doctor registry, weekly templates and exceptions.
type Service struct {
	doctors        DoctorStore
	templates      TemplateStore
	exceptions     ExceptionStore
	defaultMinutes int
	loc            *time.Location
	now            func() time.Time
	logger         zerolog.Logger
}

func NewService(doctors DoctorStore, templates TemplateStore, exceptions ExceptionStore, defaultMinutes int, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		doctors:        doctors,
		templates:      templates,
		exceptions:     exceptions,
		defaultMinutes: defaultMinutes,
		loc:            loc,
		now:            time.Now,
		logger:         logger.With().Str("component", "availability").Logger(),
	}
}

// canManage allows admins and the doctor who owns the calendar.
func canManage(caller auth.Principal, doctorID uuid.UUID) error {
	if caller.IsAdmin() || caller.IsDoctor(doctorID) {
		return nil
	}
	return apperr.Forbidden("only the doctor or an admin may change this calendar")
}

// -- Doctors --

func (s *Service) RegisterDoctor(ctx context.Context, caller auth.Principal, d *Doctor) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("only admins may register doctors")
	}
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	if d.DisplayName == "" {
		return apperr.Validation("display_name is required")
	}
	if d.DefaultSlotMinutes == 0 {
		d.DefaultSlotMinutes = s.defaultMinutes
	}
	if !ValidSlotMinutes(d.DefaultSlotMinutes) {
		return apperr.Validation("default_slot_minutes must be between %d and %d", MinSlotMinutes, MaxSlotMinutes)
	}
	if err := s.doctors.CreateDoctor(ctx, d); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor registered")
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetDoctor(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.ListDoctors(ctx, limit, offset)
}

// -- Templates --

func (s *Service) GetTemplate(ctx context.Context, doctorID uuid.UUID) ([]TemplateEntry, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	entries, err := s.templates.ListTemplate(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []TemplateEntry{}
	}
	return entries, nil
}

// ReplaceTemplate validates and stores a doctor's complete weekly template.
func (s *Service) ReplaceTemplate(ctx context.Context, caller auth.Principal, doctorID uuid.UUID, entries []TemplateEntry) ([]TemplateEntry, error) {
	if err := canManage(caller, doctorID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if err := ValidateTemplate(entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].DoctorID = doctorID
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	if err := s.templates.ReplaceTemplate(ctx, doctorID, entries); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Int("entries", len(entries)).Msg("template replaced")
	return entries, nil
}

// ValidateTemplate checks each entry and that entries sharing a weekday and
// consultation type do not overlap.
func ValidateTemplate(entries []TemplateEntry) error {
	type key struct {
		day time.Weekday
		ct  ConsultationType
	}
	byKey := make(map[key][]span)
	for i, e := range entries {
		if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
			return apperr.Validation("entry %d: day_of_week must be 0-6", i)
		}
		if err := validateRange(e.Start, e.End, e.ConsultationType, e.SlotMinutes, false); err != nil {
			return apperr.Validation("entry %d: %s", i, err.Error())
		}
		k := key{e.DayOfWeek, e.ConsultationType}
		byKey[k] = append(byKey[k], span{e.Start, e.End})
	}
	for k, spans := range byKey {
		if overlapping(spans) {
			return apperr.Validation("entries for %s %s overlap", k.day, k.ct)
		}
	}
	return nil
}

func validateRange(start, end TimeOfDay, ct ConsultationType, minutes int, optionalMinutes bool) error {
	if !start.Valid() || !end.Valid() {
		return apperr.Validation("times must be within 00:00-24:00")
	}
	if start >= end {
		return apperr.Validation("start_time %s must be before end_time %s", start, end)
	}
	if !ct.Valid() {
		return apperr.Validation("unknown consultation type %q", ct)
	}
	if optionalMinutes && minutes == 0 {
		return nil
	}
	if !ValidSlotMinutes(minutes) {
		return apperr.Validation("slot_duration_minutes must be between %d and %d", MinSlotMinutes, MaxSlotMinutes)
	}
	if int(end-start) < minutes {
		return apperr.Validation("window %s-%s is shorter than one %d minute slot", start, end, minutes)
	}
	return nil
}

func overlapping(spans []span) bool {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return true
		}
	}
	return false
}

// -- Exceptions --

func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]Exception, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	out, err := s.exceptions.ListExceptions(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Exception{}
	}
	return out, nil
}

// PutException creates or replaces the exception for e.Date.
func (s *Service) PutException(ctx context.Context, caller auth.Principal, e *Exception) error {
	if err := canManage(caller, e.DoctorID); err != nil {
		return err
	}
	if _, err := s.doctors.GetDoctor(ctx, e.DoctorID); err != nil {
		return err
	}
	if err := ValidateException(e); err != nil {
		return err
	}
	if e.Date.Before(DateOf(s.now().In(s.loc))) {
		return apperr.Validation("exception date %s is in the past", e.Date)
	}
	if err := s.exceptions.UpsertException(ctx, e); err != nil {
		return err
	}
	s.logger.Info().
		Str("doctor_id", e.DoctorID.String()).
		Str("date", e.Date.String()).
		Str("kind", string(e.Kind)).
		Msg("exception saved")
	return nil
}

// ValidateException enforces the per-kind window rules.
func ValidateException(e *Exception) error {
	if e.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	if !e.Kind.Valid() {
		return apperr.Validation("unknown exception kind %q", e.Kind)
	}
	if e.Kind == Blocked {
		if len(e.Windows) > 0 {
			return apperr.Validation("a blocked date has no windows")
		}
		return nil
	}
	if len(e.Windows) == 0 {
		return apperr.Validation("%s requires at least one window", e.Kind)
	}
	byType := make(map[ConsultationType][]span)
	for i, w := range e.Windows {
		if err := validateRange(w.Start, w.End, w.ConsultationType, w.SlotMinutes, true); err != nil {
			return apperr.Validation("window %d: %s", i, err.Error())
		}
		byType[w.ConsultationType] = append(byType[w.ConsultationType], span{w.Start, w.End})
	}
	for ct, spans := range byType {
		if overlapping(spans) {
			return apperr.Validation("%s windows overlap", ct)
		}
	}
	return nil
}

func (s *Service) DeleteException(ctx context.Context, caller auth.Principal, doctorID uuid.UUID, date Date) error {
	if err := canManage(caller, doctorID); err != nil {
		return err
	}
	if err := s.exceptions.DeleteException(ctx, doctorID, date); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("date", date.String()).Msg("exception deleted")
	return nil
}
