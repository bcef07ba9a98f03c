package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/domain/availability"
)

// Ledger is the source of truth for reserved intervals.
type Ledger interface {
	// ListActive returns the active bookings of a doctor's date ordered by
	// start.
	ListActive(ctx context.Context, doctorID uuid.UUID, date availability.Date) ([]*Booking, error)
	// InsertIfFree stores b as active unless it overlaps another active
	// booking of the same doctor and date, in which case it fails with
	// apperr.SlotConflict and stores nothing.
	InsertIfFree(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// TransitionState moves the workflow state from one value to another and
	// fails with apperr.Conflict when the stored state is not from.
	TransitionState(ctx context.Context, id uuid.UUID, from, to State) (*Booking, error)
	// Cancel releases a booked appointment's interval.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*Booking, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error)
}

// Occupancy exposes a ledger to the availability resolver.
type Occupancy struct {
	Ledger Ledger
}

func (o Occupancy) BookedIntervals(ctx context.Context, doctorID uuid.UUID, date availability.Date) ([]availability.BookedInterval, error) {
	active, err := o.Ledger.ListActive(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	out := make([]availability.BookedInterval, 0, len(active))
	for _, b := range active {
		out = append(out, b.Interval())
	}
	return out, nil
}
