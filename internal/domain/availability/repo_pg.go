package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/db"
)

// PGStore implements DoctorStore, TemplateStore and ExceptionStore on
// PostgreSQL. Calls join a transaction carried by the context.
type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (r *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func storageErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case db.IsExclusionViolation(err):
		return apperr.Validation("%s: windows overlap an existing entry", op)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("%s: doctor not found", op)
	case db.IsUniqueViolation(err):
		return apperr.Conflict("%s: already exists", op)
	}
	return db.Classify(err, op)
}

// =========== Doctors ===========

const doctorCols = `id, display_name, default_slot_minutes, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.DisplayName, &d.DefaultSlotMinutes, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *PGStore) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, display_name, default_slot_minutes)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		d.ID, d.DisplayName, d.DefaultSlotMinutes).Scan(&d.CreatedAt, &d.UpdatedAt)
	return storageErr(err, "create doctor")
}

func (r *PGStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if err != nil {
		return nil, storageErr(err, "get doctor")
	}
	return d, nil
}

func (r *PGStore) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`).Scan(&total); err != nil {
		return nil, 0, storageErr(err, "count doctors")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, storageErr(err, "list doctors")
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, storageErr(err, "scan doctor")
		}
		items = append(items, d)
	}
	return items, total, storageErr(rows.Err(), "list doctors")
}

// =========== Templates ===========

func (r *PGStore) ListTemplate(ctx context.Context, doctorID uuid.UUID) ([]TemplateEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_minute, end_minute, consultation_type, slot_minutes
		FROM template_entry WHERE doctor_id = $1
		ORDER BY day_of_week, start_minute`, doctorID)
	if err != nil {
		return nil, storageErr(err, "list template")
	}
	defer rows.Close()

	var entries []TemplateEntry
	for rows.Next() {
		var e TemplateEntry
		var dow, start, end int
		var ct string
		if err := rows.Scan(&e.ID, &e.DoctorID, &dow, &start, &end, &ct, &e.SlotMinutes); err != nil {
			return nil, storageErr(err, "scan template entry")
		}
		e.DayOfWeek = time.Weekday(dow)
		e.Start, e.End = TimeOfDay(start), TimeOfDay(end)
		e.ConsultationType = ConsultationType(ct)
		entries = append(entries, e)
	}
	return entries, storageErr(rows.Err(), "list template")
}

func (r *PGStore) ReplaceTemplate(ctx context.Context, doctorID uuid.UUID, entries []TemplateEntry) error {
	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context) error {
		q := r.conn(ctx)
		// Lock the doctor row so concurrent replacements serialize.
		var id uuid.UUID
		err := q.QueryRow(ctx, `SELECT id FROM doctor WHERE id = $1 FOR UPDATE`, doctorID).Scan(&id)
		if db.IsNoRows(err) {
			return apperr.NotFound("doctor %s not found", doctorID)
		}
		if err != nil {
			return storageErr(err, "lock doctor")
		}

		if _, err := q.Exec(ctx, `DELETE FROM template_entry WHERE doctor_id = $1`, doctorID); err != nil {
			return storageErr(err, "clear template")
		}
		for _, e := range entries {
			if _, err := q.Exec(ctx, `
				INSERT INTO template_entry (id, doctor_id, day_of_week, start_minute, end_minute, consultation_type, slot_minutes)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.ID, doctorID, int(e.DayOfWeek), int(e.Start), int(e.End), string(e.ConsultationType), e.SlotMinutes); err != nil {
				return storageErr(err, "insert template entry")
			}
		}
		return nil
	})
}

// =========== Exceptions ===========

const exceptionCols = `id, doctor_id, exception_date, kind, windows, reason, created_at, updated_at`

func scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	var date time.Time
	var kind string
	var windows []byte
	if err := row.Scan(&e.ID, &e.DoctorID, &date, &kind, &windows, &e.Reason, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Date = DateOf(date)
	e.Kind = ExceptionKind(kind)
	if err := json.Unmarshal(windows, &e.Windows); err != nil {
		return nil, fmt.Errorf("decode exception windows: %w", err)
	}
	return &e, nil
}

func (r *PGStore) ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+exceptionCols+` FROM availability_exception WHERE doctor_id = $1 ORDER BY exception_date`, doctorID)
	if err != nil {
		return nil, storageErr(err, "list exceptions")
	}
	defer rows.Close()
	var out []Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, storageErr(err, "scan exception")
		}
		out = append(out, *e)
	}
	return out, storageErr(rows.Err(), "list exceptions")
}

func (r *PGStore) GetException(ctx context.Context, doctorID uuid.UUID, date Date) (*Exception, error) {
	e, err := scanException(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exceptionCols+` FROM availability_exception WHERE doctor_id = $1 AND exception_date = $2`,
		doctorID, date.In(time.UTC)))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get exception")
	}
	return e, nil
}

func (r *PGStore) UpsertException(ctx context.Context, e *Exception) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	windows := e.Windows
	if windows == nil {
		windows = []Window{}
	}
	payload, err := json.Marshal(windows)
	if err != nil {
		return apperr.Internal(err, "encode exception windows")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_exception (id, doctor_id, exception_date, kind, windows, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT availability_exception_doctor_date DO UPDATE
		SET kind = EXCLUDED.kind, windows = EXCLUDED.windows, reason = EXCLUDED.reason, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		e.ID, e.DoctorID, e.Date.In(time.UTC), string(e.Kind), payload, e.Reason).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return storageErr(err, "upsert exception")
}

func (r *PGStore) DeleteException(ctx context.Context, doctorID uuid.UUID, date Date) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM availability_exception WHERE doctor_id = $1 AND exception_date = $2`,
		doctorID, date.In(time.UTC))
	if err != nil {
		return storageErr(err, "delete exception")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("no exception for doctor %s on %s", doctorID, date)
	}
	return nil
}
