package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// MemoryStore implements the session, documentation and prescription stores
// in process.
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[uuid.UUID]Session
	docs          map[uuid.UUID]Documentation
	prescriptions map[uuid.UUID]Prescription
	byAppointment map[uuid.UUID][]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[uuid.UUID]Session),
		docs:          make(map[uuid.UUID]Documentation),
		prescriptions: make(map[uuid.UUID]Prescription),
		byAppointment: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.AppointmentID]; ok {
		return apperr.Conflict("appointment %s already has a session", s.AppointmentID)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.sessions[s.AppointmentID] = *s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, appointmentID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[appointmentID]
	if !ok {
		return nil, apperr.NotFound("no session for appointment %s", appointmentID)
	}
	return &s, nil
}

func (m *MemoryStore) EndSession(_ context.Context, appointmentID uuid.UUID, at time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[appointmentID]
	if !ok || !s.Active() {
		return nil, apperr.NotFound("no active session for appointment %s", appointmentID)
	}
	s.EndedAt = &at
	m.sessions[appointmentID] = s
	return &s, nil
}

func (m *MemoryStore) UpsertDocumentation(_ context.Context, d *Documentation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.docs[d.AppointmentID]; ok {
		d.CreatedAt = prev.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.docs[d.AppointmentID] = *d
	return nil
}

func (m *MemoryStore) GetDocumentation(_ context.Context, appointmentID uuid.UUID) (*Documentation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[appointmentID]
	if !ok {
		return nil, apperr.NotFound("no documentation for appointment %s", appointmentID)
	}
	return &d, nil
}

func copyPrescription(p Prescription) *Prescription {
	p.Items = append([]PrescriptionItem(nil), p.Items...)
	return &p
}

func (m *MemoryStore) CreatePrescription(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	m.prescriptions[p.ID] = *copyPrescription(*p)
	m.byAppointment[p.AppointmentID] = append(m.byAppointment[p.AppointmentID], p.ID)
	return nil
}

func (m *MemoryStore) GetPrescription(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, apperr.NotFound("prescription %s not found", id)
	}
	return copyPrescription(p), nil
}

func (m *MemoryStore) LatestPrescription(_ context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byAppointment[appointmentID]
	if len(ids) == 0 {
		return nil, apperr.NotFound("no prescription for appointment %s", appointmentID)
	}
	return copyPrescription(m.prescriptions[ids[len(ids)-1]]), nil
}

// ListPrescriptions returns the newest first.
func (m *MemoryStore) ListPrescriptions(_ context.Context, appointmentID uuid.UUID) ([]*Prescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byAppointment[appointmentID]
	out := make([]*Prescription, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, copyPrescription(m.prescriptions[ids[i]]))
	}
	return out, nil
}
