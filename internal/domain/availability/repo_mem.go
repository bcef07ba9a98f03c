package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/pkg/pagination"
)

type exceptionKey struct {
	doctorID uuid.UUID
	date     Date
}

// MemoryStore implements DoctorStore, TemplateStore and ExceptionStore over
// mutex-guarded maps. Values are copied in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	doctors    map[uuid.UUID]Doctor
	order      []uuid.UUID
	templates  map[uuid.UUID][]TemplateEntry
	exceptions map[exceptionKey]Exception
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors:    make(map[uuid.UUID]Doctor),
		templates:  make(map[uuid.UUID][]TemplateEntry),
		exceptions: make(map[exceptionKey]Exception),
	}
}

func (s *MemoryStore) CreateDoctor(_ context.Context, d *Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if _, ok := s.doctors[d.ID]; ok {
		return apperr.Conflict("doctor %s already exists", d.ID)
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	s.doctors[d.ID] = *d
	s.order = append(s.order, d.ID)
	return nil
}

func (s *MemoryStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return &d, nil
}

func (s *MemoryStore) ListDoctors(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Doctor, 0, len(s.order))
	for _, id := range s.order {
		d := s.doctors[id]
		all = append(all, &d)
	}
	page, total := pagination.Slice(all, limit, offset)
	return page, total, nil
}

func (s *MemoryStore) ListTemplate(_ context.Context, doctorID uuid.UUID) ([]TemplateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TemplateEntry(nil), s.templates[doctorID]...), nil
}

func (s *MemoryStore) ReplaceTemplate(_ context.Context, doctorID uuid.UUID, entries []TemplateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[doctorID]; !ok {
		return apperr.NotFound("doctor %s not found", doctorID)
	}
	cp := append([]TemplateEntry(nil), entries...)
	sort.Slice(cp, func(i, j int) bool {
		if cp[i].DayOfWeek != cp[j].DayOfWeek {
			return cp[i].DayOfWeek < cp[j].DayOfWeek
		}
		return cp[i].Start < cp[j].Start
	})
	s.templates[doctorID] = cp
	return nil
}

func copyException(e Exception) Exception {
	e.Windows = append([]Window(nil), e.Windows...)
	return e
}

func (s *MemoryStore) ListExceptions(_ context.Context, doctorID uuid.UUID) ([]Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Exception
	for k, e := range s.exceptions {
		if k.doctorID == doctorID {
			out = append(out, copyException(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) GetException(_ context.Context, doctorID uuid.UUID, date Date) (*Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exceptions[exceptionKey{doctorID, date}]
	if !ok {
		return nil, nil
	}
	cp := copyException(e)
	return &cp, nil
}

func (s *MemoryStore) UpsertException(_ context.Context, e *Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[e.DoctorID]; !ok {
		return apperr.NotFound("doctor %s not found", e.DoctorID)
	}
	key := exceptionKey{e.DoctorID, e.Date}
	now := time.Now().UTC()
	if prev, ok := s.exceptions[key]; ok {
		e.ID, e.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.exceptions[key] = copyException(*e)
	return nil
}

func (s *MemoryStore) DeleteException(_ context.Context, doctorID uuid.UUID, date Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := exceptionKey{doctorID, date}
	if _, ok := s.exceptions[key]; !ok {
		return apperr.NotFound("no exception for doctor %s on %s", doctorID, date)
	}
	delete(s.exceptions, key)
	return nil
}
