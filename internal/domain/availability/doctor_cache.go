package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedDoctorStore keeps recently resolved doctor records in a bounded LRU.
// Doctor records are immutable once registered, so entries never go stale;
// misses are not cached because another instance may register the id later.
type CachedDoctorStore struct {
	DoctorStore
	cache *lru.Cache[uuid.UUID, Doctor]
}

func NewCachedDoctorStore(inner DoctorStore, size int) (*CachedDoctorStore, error) {
	cache, err := lru.New[uuid.UUID, Doctor](size)
	if err != nil {
		return nil, fmt.Errorf("doctor cache: %w", err)
	}
	return &CachedDoctorStore{DoctorStore: inner, cache: cache}, nil
}

func (s *CachedDoctorStore) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := s.DoctorStore.CreateDoctor(ctx, d); err != nil {
		return err
	}
	s.cache.Add(d.ID, *d)
	return nil
}

func (s *CachedDoctorStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := s.cache.Get(id); ok {
		return &d, nil
	}
	d, err := s.DoctorStore.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, *d)
	return d, nil
}

func (s *CachedDoctorStore) Len() int { return s.cache.Len() }
