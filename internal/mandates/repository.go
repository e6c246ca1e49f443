package mandates

import (
	"context"
	"sync"
)

// Repository persists mandates.
type Repository interface {
	Create(ctx context.Context, m Mandate) error
	Get(ctx context.Context, id string) (Mandate, error)
	// List returns mandates newest first.
	List(ctx context.Context) ([]Mandate, error)
	// Update stores m only if the stored state still equals expected.
	Update(ctx context.Context, m Mandate, expected State) error
}

// MemoryRepository keeps mandates in memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	mandates map[string]Mandate
	order    []string
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{mandates: make(map[string]Mandate)}
}

func (r *MemoryRepository) Create(_ context.Context, m Mandate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mandates[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	r.mandates[m.ID] = m
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Mandate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mandates[id]
	if !ok {
		return Mandate{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Mandate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mandate, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.mandates[r.order[i]])
	}
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, m Mandate, expected State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.mandates[m.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != expected {
		return ErrInvalidState
	}
	r.mandates[m.ID] = m
	return nil
}
