package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/platform/notification"
)

// DayLister lists every appointment still in the booked state on a date,
// across all doctors.
type DayLister interface {
	ListBookedOn(ctx context.Context, date availability.Date) ([]*Booking, error)
}

// Reminder emits booking.reminder for the next clinic day's appointments.
// It runs outside the request path and never mutates the ledger.
type Reminder struct {
	ledger  DayLister
	emitter notification.Emitter
	loc     *time.Location
	now     func() time.Time
	timeout time.Duration
	logger  zerolog.Logger

	mu   sync.Mutex
	sent map[uuid.UUID]availability.Date
}

func NewReminder(ledger DayLister, emitter notification.Emitter, loc *time.Location, logger zerolog.Logger) *Reminder {
	return &Reminder{
		ledger:  ledger,
		emitter: emitter,
		loc:     loc,
		now:     time.Now,
		timeout: time.Minute,
		logger:  logger.With().Str("component", "reminder").Logger(),
		sent:    make(map[uuid.UUID]availability.Date),
	}
}

// Run sends one reminder per booked appointment tomorrow. Appointments
// already reminded by this process are skipped, so overlapping schedules do
// not double-notify.
func (r *Reminder) Run(ctx context.Context) (int, error) {
	today := availability.DateOf(r.now().In(r.loc))
	tomorrow := today.AddDays(1)

	bookings, err := r.ledger.ListBookedOn(ctx, tomorrow)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.sent {
		if d.Before(today) {
			delete(r.sent, id)
		}
	}

	n := 0
	for _, b := range bookings {
		if _, done := r.sent[b.ID]; done {
			continue
		}
		r.emitter.Emit(ctx, notification.NewEvent(notification.BookingReminder, b.ID, b.DoctorID, b.PatientID, map[string]string{
			"date":              b.Date.String(),
			"start":             b.Start.String(),
			"end":               b.End.String(),
			"consultation_type": string(b.ConsultationType),
		}))
		r.sent[b.ID] = b.Date
		n++
	}
	return n, nil
}

// Schedule registers Run on c under a standard five-field cron spec.
func (r *Reminder) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		n, err := r.Run(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("reminder run failed")
			return
		}
		r.logger.Info().Int("sent", n).Msg("reminders dispatched")
	})
}
