package store

import (
	"context"
	"sync"
	"time"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
)

// InMemory is a Registrations implementation for tests and single-node runs.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.Address]models.Registration
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.Address]models.Registration)}
}

func (s *InMemory) FindByAddress(_ context.Context, addr id.Address) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *InMemory) FindMany(_ context.Context, addrs []id.Address) (map[id.Address]models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(addrs), nil
}

// Apply holds the write lock across planning, the hook and the commit, so a
// failing hook leaves the records untouched.
func (s *InMemory) Apply(ctx context.Context, addrs []id.Address, registerTime time.Time, hook Hook) (*models.RegistrationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := models.PlanRegistration(addrs, s.collect(addrs), registerTime)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx, plan); err != nil {
			return nil, err
		}
	}
	for _, w := range plan.Writes {
		s.records[w.Address] = w
	}
	return plan, nil
}

func (s *InMemory) collect(addrs []id.Address) map[id.Address]models.Registration {
	out := make(map[id.Address]models.Registration, len(addrs))
	for _, a := range addrs {
		if record, ok := s.records[a]; ok {
			out[a] = record
		}
	}
	return out
}

// InMemorySettings is a Settings implementation for tests and single-node runs.
type InMemorySettings struct {
	mu      sync.RWMutex
	current *models.Settings
}

// NewInMemorySettings returns an empty settings store.
func NewInMemorySettings() *InMemorySettings {
	return &InMemorySettings{}
}

func (s *InMemorySettings) Load(_ context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.current.Clone(), nil
}

func (s *InMemorySettings) Save(_ context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored uint64
	if s.current != nil {
		stored = s.current.Version
	}
	if settings.Version != stored+1 {
		return sentinel.ErrConflict
	}
	s.current = settings.Clone()
	return nil
}
