package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/userdata-registry/internal/model"
)

// MemoryStore is a process-local UserDataStore.  It is selected with
// STORE_DRIVER=memory and backs the handler tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]model.UserData
	byReg  map[string]uint64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uint64]model.UserData),
		byReg: make(map[string]uint64),
		now:   time.Now,
	}
}

func (s *MemoryStore) List(_ context.Context) ([]*model.UserData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.UserData, 0, len(s.byID))
	for _, d := range s.byID {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, d *model.UserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byReg[d.RegistrationID]; taken {
		return ErrConflict
	}
	s.nextID++
	now := s.now().UTC().Truncate(time.Microsecond)
	d.ID = s.nextID
	d.CreatedAt = now
	d.UpdatedAt = now
	s.byID[d.ID] = *d
	s.byReg[d.RegistrationID] = d.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uint64) (*model.UserData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) GetByRegistrationID(_ context.Context, registrationID string) (*model.UserData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReg[registrationID]
	if !ok {
		return nil, ErrNotFound
	}
	d := s.byID[id]
	return &d, nil
}

func (s *MemoryStore) Update(_ context.Context, d *model.UserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[d.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.byReg[d.RegistrationID]; taken && owner != d.ID {
		return ErrConflict
	}
	d.CreatedAt = prev.CreatedAt
	d.UpdatedAt = nextTimestamp(prev.UpdatedAt, s.now())
	delete(s.byReg, prev.RegistrationID)
	s.byReg[d.RegistrationID] = d.ID
	s.byID[d.ID] = *d
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uint64) (*model.UserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byReg, d.RegistrationID)
	return &d, nil
}
