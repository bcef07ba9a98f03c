package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/domain/booking"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/internal/platform/db"
	"github.com/medappt/scheduler/internal/platform/notification"
)

type fixture struct {
	svc     *Service
	ledger  *booking.MemoryLedger
	events  *notification.Recorder
	appt    *booking.Booking
	doctor  auth.Principal
	patient auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := booking.NewMemoryLedger()
	doctor := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	patient := auth.Principal{ID: uuid.New(), Role: auth.RolePatient}
	appt := &booking.Booking{
		DoctorID:         doctor.ID,
		PatientID:        patient.ID,
		Date:             availability.Date{Year: 2026, Month: time.March, Day: 2},
		Start:            9 * 60,
		End:              9*60 + 30,
		ConsultationType: availability.Remote,
	}
	if err := ledger.InsertIfFree(context.Background(), appt); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	store := NewMemoryStore()
	events := &notification.Recorder{}
	svc := NewService(ledger, store, store, store, db.NopTransactor{}, events, zerolog.Nop())
	return &fixture{svc: svc, ledger: ledger, events: events, appt: appt, doctor: doctor, patient: patient}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx, f.doctor, f.appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Active() || sess.AppointmentID != f.appt.ID {
		t.Errorf("unexpected session %+v", sess)
	}
	b, _ := f.ledger.GetByID(ctx, f.appt.ID)
	if b.State != booking.StateSessionActive {
		t.Errorf("expected session_active, got %s", b.State)
	}

	if _, err := f.svc.StartSession(ctx, f.doctor, f.appt.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on second start, got %v", err)
	}
}

func TestStartSession_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []auth.Principal{
		f.patient,
		{ID: uuid.New(), Role: auth.RoleDoctor},
		{ID: uuid.New(), Role: auth.RoleAdmin},
	}
	for _, p := range cases {
		if _, err := f.svc.StartSession(ctx, p, f.appt.ID); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s: expected forbidden, got %v", p, err)
		}
	}
	if _, err := f.svc.StartSession(ctx, f.doctor, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStartSession_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ledger.Cancel(ctx, f.appt.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.StartSession(ctx, f.doctor, f.appt.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestEndSession_BeforeStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EndSession(context.Background(), f.doctor, f.appt.ID)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	b, _ := f.ledger.GetByID(context.Background(), f.appt.ID)
	if b.State != booking.StateBooked {
		t.Errorf("state must be unchanged, got %s", b.State)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.StartSession(ctx, f.doctor, f.appt.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := f.svc.EndSession(ctx, f.doctor, f.appt.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if sess.Active() {
		t.Error("expected ended session")
	}
	if _, err := f.svc.EndSession(ctx, f.doctor, f.appt.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on second end, got %v", err)
	}
	b, _ := f.ledger.GetByID(ctx, f.appt.ID)
	if b.State != booking.StateSessionEnded {
		t.Errorf("expected session_ended, got %s", b.State)
	}

	got, err := f.svc.GetSession(ctx, f.patient, f.appt.ID)
	if err != nil || got.EndedAt == nil {
		t.Errorf("patient read: %+v %v", got, err)
	}

	want := []notification.Kind{notification.SessionStarted, notification.SessionEnded}
	kinds := f.events.Kinds()
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("expected %v, got %v", want, kinds)
	}
}

func TestDocumentation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	note := &Documentation{ChiefComplaint: "headache"}
	if err := f.svc.SaveDocumentation(ctx, f.doctor, f.appt.ID, note); err != nil {
		t.Fatalf("save before session: %v", err)
	}

	_, _ = f.svc.StartSession(ctx, f.doctor, f.appt.ID)
	if err := f.svc.SaveDocumentation(ctx, f.doctor, f.appt.ID, note); err != nil {
		t.Fatalf("save during session: %v", err)
	}
	_, _ = f.svc.EndSession(ctx, f.doctor, f.appt.ID)

	update := &Documentation{ChiefComplaint: "headache", Diagnosis: "tension headache"}
	if err := f.svc.SaveDocumentation(ctx, f.doctor, f.appt.ID, update); err != nil {
		t.Fatalf("save after session: %v", err)
	}

	got, err := f.svc.GetDocumentation(ctx, f.patient, f.appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Diagnosis != "tension headache" || got.PatientID != f.patient.ID {
		t.Errorf("unexpected documentation %+v", got)
	}

	stranger := auth.Principal{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.GetDocumentation(ctx, stranger, f.appt.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.SaveDocumentation(ctx, f.patient, f.appt.ID, update); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patients may not write documentation, got %v", err)
	}
	if err := f.svc.SaveDocumentation(ctx, f.doctor, f.appt.ID, &Documentation{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for empty note, got %v", err)
	}
}

func TestDocumentation_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ledger.Cancel(ctx, f.appt.ID, "patient request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := f.svc.SaveDocumentation(ctx, f.doctor, f.appt.ID, &Documentation{Notes: "no show"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on cancelled appointment, got %v", err)
	}
}

func TestPrescriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := func(med string) *Prescription {
		return &Prescription{Items: []PrescriptionItem{{Medication: med, Dosage: "500mg", Frequency: "twice daily"}}}
	}

	if err := f.svc.CreatePrescription(ctx, f.doctor, f.appt.ID, rx("amoxicillin")); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict before session, got %v", err)
	}
	_, _ = f.svc.StartSession(ctx, f.doctor, f.appt.ID)

	first := rx("amoxicillin")
	if err := f.svc.CreatePrescription(ctx, f.doctor, f.appt.ID, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := rx("ibuprofen")
	if err := f.svc.CreatePrescription(ctx, f.doctor, f.appt.ID, second); err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("prescriptions must be distinct records")
	}

	latest, err := f.svc.GetLatestPrescription(ctx, f.patient, f.appt.ID)
	if err != nil || latest.ID != second.ID {
		t.Errorf("expected latest to be %s, got %+v %v", second.ID, latest, err)
	}
	all, err := f.svc.ListPrescriptions(ctx, f.doctor, f.appt.ID)
	if err != nil || len(all) != 2 {
		t.Errorf("expected two prescriptions, got %d %v", len(all), err)
	}
	byID, err := f.svc.GetPrescription(ctx, f.patient, first.ID)
	if err != nil || byID.Items[0].Medication != "amoxicillin" {
		t.Errorf("get by id: %+v %v", byID, err)
	}

	stranger := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	if _, err := f.svc.GetPrescription(ctx, stranger, first.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.CreatePrescription(ctx, f.doctor, f.appt.ID, &Prescription{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

type failingSessions struct {
	*MemoryStore
}

func (failingSessions) CreateSession(context.Context, *Session) error {
	return apperr.Transient(context.DeadlineExceeded, "create session")
}

func TestStartSession_StoreFailure(t *testing.T) {
	f := newFixture(t)
	store := NewMemoryStore()
	svc := NewService(f.ledger, failingSessions{store}, store, store, db.NopTransactor{}, f.events, zerolog.Nop())
	if _, err := svc.StartSession(context.Background(), f.doctor, f.appt.ID); !apperr.Retryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(f.events.Events()) != 0 {
		t.Error("no event may be emitted for a failed start")
	}
}
