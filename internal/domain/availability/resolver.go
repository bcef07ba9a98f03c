package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// Occupancy reports the active bookings of a doctor's day.
type Occupancy interface {
	BookedIntervals(ctx context.Context, doctorID uuid.UUID, date Date) ([]BookedInterval, error)
}

type SlotQuery struct {
	DoctorID uuid.UUID
	Date     Date
	Type     ConsultationType
	// Duration in minutes; zero uses each window's own duration.
	Duration int
}

func (q SlotQuery) Validate() error {
	if q.DoctorID == uuid.Nil {
		return apperr.Validation("doctor id is required")
	}
	if q.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	if !q.Type.Valid() {
		return apperr.Validation("unknown consultation type %q", q.Type)
	}
	if q.Duration != 0 && !ValidSlotMinutes(q.Duration) {
		return apperr.Validation("duration must be between %d and %d minutes", MinSlotMinutes, MaxSlotMinutes)
	}
	return nil
}

// Availability is the resolver's answer for one doctor, date and type.
type Availability struct {
	Doctor           *Doctor          `json:"-"`
	DoctorID         uuid.UUID        `json:"doctor_id"`
	Date             Date             `json:"date"`
	ConsultationType ConsultationType `json:"consultation_type"`
	Slots            []TimeSlot       `json:"slots"`
	Booked           []BookedInterval `json:"booked"`
}

// Resolver composes generated slots with ledger occupancy. It only reads.
type Resolver struct {
	doctors    DoctorStore
	templates  TemplateStore
	exceptions ExceptionStore
	occupancy  Occupancy
	loc        *time.Location
	now        func() time.Time
}

func NewResolver(doctors DoctorStore, templates TemplateStore, exceptions ExceptionStore, occupancy Occupancy, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		doctors:    doctors,
		templates:  templates,
		exceptions: exceptions,
		occupancy:  occupancy,
		loc:        loc,
		now:        time.Now,
	}
}

// WithClock replaces the resolver's time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) Now() time.Time { return r.now() }

// GetAvailableSlots returns the generated slots that intersect no active
// booking, plus the booked intervals themselves. The four reads run
// concurrently and stop at the first failure.
func (r *Resolver) GetAvailableSlots(ctx context.Context, q SlotQuery) (*Availability, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		doctor    *Doctor
		template  []TemplateEntry
		exception *Exception
		booked    []BookedInterval
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		doctor, err = r.doctors.GetDoctor(gctx, q.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		template, err = r.templates.ListTemplate(gctx, q.DoctorID)
		return err
	})
	g.Go(func() (err error) {
		exception, err = r.exceptions.GetException(gctx, q.DoctorID, q.Date)
		return err
	})
	g.Go(func() (err error) {
		booked, err = r.occupancy.BookedIntervals(gctx, q.DoctorID, q.Date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	generated := GenerateSlots(GenerateInput{
		DoctorID:        q.DoctorID,
		Date:            q.Date,
		Type:            q.Type,
		Duration:        q.Duration,
		DefaultDuration: doctor.DefaultSlotMinutes,
		Template:        template,
		Exception:       exception,
		Now:             r.now(),
		Location:        r.loc,
	})

	if booked == nil {
		booked = []BookedInterval{}
	}
	return &Availability{
		Doctor:           doctor,
		DoctorID:         q.DoctorID,
		Date:             q.Date,
		ConsultationType: q.Type,
		Slots:            SubtractBooked(generated, booked),
		Booked:           booked,
	}, nil
}

// GetBookedIntervals returns the occupied ranges of a doctor's date.
func (r *Resolver) GetBookedIntervals(ctx context.Context, doctorID uuid.UUID, date Date) ([]BookedInterval, error) {
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if _, err := r.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	booked, err := r.occupancy.BookedIntervals(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if booked == nil {
		booked = []BookedInterval{}
	}
	return booked, nil
}
