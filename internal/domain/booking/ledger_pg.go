package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/db"
)

// PGLedger stores bookings in PostgreSQL. Overlap exclusion is enforced by
// the booking_no_overlap constraint, so concurrent inserts for the same
// doctor and date are decided by the database.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (r *PGLedger) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bookingCols = `id, doctor_id, patient_id, booking_date, start_minute, end_minute,
	consultation_type, status, state, cancellation_reason, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var date time.Time
	var start, end int
	var ct, status, state string
	err := row.Scan(&b.ID, &b.DoctorID, &b.PatientID, &date, &start, &end,
		&ct, &status, &state, &b.CancellationReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Date = availability.DateOf(date)
	b.Start, b.End = availability.TimeOfDay(start), availability.TimeOfDay(end)
	b.ConsultationType = availability.ConsultationType(ct)
	b.Status, b.State = Status(status), State(state)
	return &b, nil
}

func collect(rows pgx.Rows, op string) ([]*Booking, error) {
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, db.Classify(err, op)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, op)
	}
	return out, nil
}

func (r *PGLedger) ListActive(ctx context.Context, doctorID uuid.UUID, date availability.Date) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM booking
		WHERE doctor_id = $1 AND booking_date = $2 AND status = 'active'
		ORDER BY start_minute`, doctorID, date.In(time.UTC))
	if err != nil {
		return nil, db.Classify(err, "list active bookings")
	}
	return collect(rows, "list active bookings")
}

// InsertIfFree is a single INSERT. An exclusion violation means another
// active booking won the interval.
func (r *PGLedger) InsertIfFree(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status, b.State = StatusActive, StateBooked
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO booking (id, doctor_id, patient_id, booking_date, start_minute, end_minute,
			consultation_type, status, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		b.ID, b.DoctorID, b.PatientID, b.Date.In(time.UTC), int(b.Start), int(b.End),
		string(b.ConsultationType), string(b.Status), string(b.State)).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsExclusionViolation(err):
		return apperr.SlotConflict("%s %s-%s is already booked", b.Date, b.Start, b.End)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("doctor %s not found", b.DoctorID)
	}
	return db.Classify(err, "insert booking")
}

func (r *PGLedger) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, db.Classify(err, "get appointment")
	}
	return b, nil
}

// stateMismatch distinguishes a missing row from a compare-and-set miss.
func (r *PGLedger) stateMismatch(ctx context.Context, id uuid.UUID, want State) error {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("appointment %s is %s, not %s", id, cur.State, want)
}

func (r *PGLedger) TransitionState(ctx context.Context, id uuid.UUID, from, to State) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `
		UPDATE booking SET state = $3, updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING `+bookingCols, id, string(from), string(to)))
	if db.IsNoRows(err) {
		return nil, r.stateMismatch(ctx, id, from)
	}
	if err != nil {
		return nil, db.Classify(err, "update appointment state")
	}
	return b, nil
}

func (r *PGLedger) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `
		UPDATE booking SET status = 'cancelled', state = 'cancelled', cancellation_reason = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'booked'
		RETURNING `+bookingCols, id, reason))
	if db.IsNoRows(err) {
		return nil, r.stateMismatch(ctx, id, StateBooked)
	}
	if err != nil {
		return nil, db.Classify(err, "cancel appointment")
	}
	return b, nil
}

func (r *PGLedger) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error) {
	where := `($1 = '00000000-0000-0000-0000-000000000000'::uuid OR doctor_id = $1)
		AND ($2 = '00000000-0000-0000-0000-000000000000'::uuid OR patient_id = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking WHERE `+where, f.DoctorID, f.PatientID).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count appointments")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM booking WHERE `+where+`
		ORDER BY booking_date, start_minute LIMIT $3 OFFSET $4`, f.DoctorID, f.PatientID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify(err, "list appointments")
	}
	items, err := collect(rows, "list appointments")
	return items, total, err
}

func (r *PGLedger) ListBookedOn(ctx context.Context, date availability.Date) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM booking
		WHERE booking_date = $1 AND state = 'booked'
		ORDER BY start_minute, doctor_id`, date.In(time.UTC))
	if err != nil {
		return nil, db.Classify(err, "list bookings for reminders")
	}
	return collect(rows, "list bookings for reminders")
}
