package visit

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

// PGStore implements the visit stores on PostgreSQL. Calls join a
// transaction carried by the context.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (r *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// =========== Sessions ===========

const sessionCols = `id, appointment_id, doctor_id, started_at, ended_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.AppointmentID, &s.DoctorID, &s.StartedAt, &s.EndedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGStore) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_session (id, appointment_id, doctor_id, started_at)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.AppointmentID, s.DoctorID, s.StartedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Conflict("appointment %s already has a session", s.AppointmentID)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("appointment %s not found", s.AppointmentID)
	}
	return db.Classify(err, "create session")
}

func (r *PGStore) GetSession(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	s, err := scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM visit_session WHERE appointment_id = $1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("no session for appointment %s", appointmentID)
	}
	if err != nil {
		return nil, db.Classify(err, "get session")
	}
	return s, nil
}

func (r *PGStore) EndSession(ctx context.Context, appointmentID uuid.UUID, at time.Time) (*Session, error) {
	s, err := scanSession(r.conn(ctx).QueryRow(ctx, `
		UPDATE visit_session SET ended_at = $2
		WHERE appointment_id = $1 AND ended_at IS NULL
		RETURNING `+sessionCols, appointmentID, at))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("no active session for appointment %s", appointmentID)
	}
	if err != nil {
		return nil, db.Classify(err, "end session")
	}
	return s, nil
}

// =========== Documentation ===========

func (r *PGStore) UpsertDocumentation(ctx context.Context, d *Documentation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_documentation (appointment_id, doctor_id, patient_id, chief_complaint, diagnosis, notes, follow_up)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id) DO UPDATE
		SET chief_complaint = EXCLUDED.chief_complaint, diagnosis = EXCLUDED.diagnosis,
			notes = EXCLUDED.notes, follow_up = EXCLUDED.follow_up, updated_at = NOW()
		RETURNING created_at, updated_at`,
		d.AppointmentID, d.DoctorID, d.PatientID, d.ChiefComplaint, d.Diagnosis, d.Notes, d.FollowUp).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return db.Classify(err, "save documentation")
	}
	return nil
}

func (r *PGStore) GetDocumentation(ctx context.Context, appointmentID uuid.UUID) (*Documentation, error) {
	var d Documentation
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT appointment_id, doctor_id, patient_id, chief_complaint, diagnosis, notes, follow_up, created_at, updated_at
		FROM visit_documentation WHERE appointment_id = $1`, appointmentID).
		Scan(&d.AppointmentID, &d.DoctorID, &d.PatientID, &d.ChiefComplaint, &d.Diagnosis,
			&d.Notes, &d.FollowUp, &d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("no documentation for appointment %s", appointmentID)
	}
	if err != nil {
		return nil, db.Classify(err, "get documentation")
	}
	return &d, nil
}

// =========== Prescriptions ===========

const prescriptionCols = `id, appointment_id, doctor_id, patient_id, items, notes, created_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var items []byte
	if err := row.Scan(&p.ID, &p.AppointmentID, &p.DoctorID, &p.PatientID, &items, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return nil, fmt.Errorf("decode prescription items: %w", err)
	}
	return &p, nil
}

func (r *PGStore) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return apperr.Internal(err, "encode prescription items")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, appointment_id, doctor_id, patient_id, items, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.AppointmentID, p.DoctorID, p.PatientID, items, p.Notes).Scan(&p.CreatedAt)
	if err != nil {
		return db.Classify(err, "create prescription")
	}
	return nil
}

func (r *PGStore) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("prescription %s not found", id)
	}
	if err != nil {
		return nil, db.Classify(err, "get prescription")
	}
	return p, nil
}

func (r *PGStore) LatestPrescription(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+prescriptionCols+` FROM prescription
		WHERE appointment_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("no prescription for appointment %s", appointmentID)
	}
	if err != nil {
		return nil, db.Classify(err, "latest prescription")
	}
	return p, nil
}

func (r *PGStore) ListPrescriptions(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescription
		WHERE appointment_id = $1 ORDER BY created_at DESC, id DESC`, appointmentID)
	if err != nil {
		return nil, db.Classify(err, "list prescriptions")
	}
	defer rows.Close()
	out := []*Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, db.Classify(err, "scan prescription")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "list prescriptions")
	}
	return out, nil
}
