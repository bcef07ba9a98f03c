package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/pkg/pagination"
)

type dayKey struct {
	doctorID uuid.UUID
	date     availability.Date
}

// MemoryLedger keeps bookings in process. Inserts for the same doctor and
// date serialize on a per-day lock, so the overlap check and the write are
// one step while other days proceed independently.
type MemoryLedger struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]Booking
	byDay    map[dayKey][]uuid.UUID
	order    []uuid.UUID

	locksMu sync.Mutex
	locks   map[dayKey]*sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		bookings: make(map[uuid.UUID]Booking),
		byDay:    make(map[dayKey][]uuid.UUID),
		locks:    make(map[dayKey]*sync.Mutex),
	}
}

func (l *MemoryLedger) dayLock(k dayKey) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	return m
}

func (l *MemoryLedger) activeLocked(k dayKey) []*Booking {
	var out []*Booking
	for _, id := range l.byDay[k] {
		b := l.bookings[id]
		if b.Status == StatusActive {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (l *MemoryLedger) ListActive(ctx context.Context, doctorID uuid.UUID, date availability.Date) ([]*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Transient(err, "list active bookings")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeLocked(dayKey{doctorID, date}), nil
}

func (l *MemoryLedger) InsertIfFree(ctx context.Context, b *Booking) error {
	k := dayKey{b.DoctorID, b.Date}
	day := l.dayLock(k)
	day.Lock()
	defer day.Unlock()

	if err := ctx.Err(); err != nil {
		return apperr.Transient(err, "insert booking")
	}

	l.mu.RLock()
	active := l.activeLocked(k)
	l.mu.RUnlock()
	for _, other := range active {
		if other.Overlaps(b.Start, b.End) {
			return apperr.SlotConflict("%s %s-%s is already booked", b.Date, other.Start, other.End)
		}
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.Status, b.State = StatusActive, StateBooked
	b.CreatedAt, b.UpdatedAt = now, now

	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookings[b.ID] = *b
	l.byDay[k] = append(l.byDay[k], b.ID)
	l.order = append(l.order, b.ID)
	return nil
}

func (l *MemoryLedger) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bookings[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return &b, nil
}

func (l *MemoryLedger) TransitionState(_ context.Context, id uuid.UUID, from, to State) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if b.State != from {
		return nil, apperr.Conflict("appointment %s is %s, not %s", id, b.State, from)
	}
	b.State = to
	b.UpdatedAt = time.Now().UTC()
	l.bookings[id] = b
	return &b, nil
}

func (l *MemoryLedger) Cancel(_ context.Context, id uuid.UUID, reason string) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if b.State != StateBooked {
		return nil, apperr.Conflict("appointment %s is %s and can no longer be cancelled", id, b.State)
	}
	b.Status, b.State = StatusCancelled, StateCancelled
	b.CancellationReason = reason
	b.UpdatedAt = time.Now().UTC()
	l.bookings[id] = b
	return &b, nil
}

func (l *MemoryLedger) List(_ context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var all []*Booking
	for _, id := range l.order {
		b := l.bookings[id]
		if f.DoctorID != uuid.Nil && b.DoctorID != f.DoctorID {
			continue
		}
		if f.PatientID != uuid.Nil && b.PatientID != f.PatientID {
			continue
		}
		all = append(all, &b)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].Start < all[j].Start
	})
	page, total := pagination.Slice(all, limit, offset)
	return page, total, nil
}

func (l *MemoryLedger) ListBookedOn(ctx context.Context, date availability.Date) ([]*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Transient(err, "list bookings on %s", date)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Booking
	for _, id := range l.order {
		b := l.bookings[id]
		if b.Date == date && b.State == StateBooked {
			out = append(out, &b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
