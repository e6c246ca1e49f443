package payments

import (
	"context"
	"sync"
)

// Repository persists payment records.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	// List returns payments newest first.
	List(ctx context.Context) ([]Payment, error)
	// Update stores p only if the stored state still equals expected.
	Update(ctx context.Context, p Payment, expected State) error
	CountByState(ctx context.Context) (map[State]int, error)
}

// MemoryRepository keeps payments in memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]Payment
	order    []string
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payments: make(map[string]Payment)}
}

func (r *MemoryRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Payment, 0, len(r.payments))
	for i := len(r.order) - 1; i >= 0; i-- {
		if p, ok := r.payments[r.order[i]]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, p Payment, expected State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != expected {
		return ErrStateConflict
	}
	r.payments[p.ID] = p
	return nil
}

func (r *MemoryRepository) CountByState(_ context.Context) (map[State]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[State]int)
	for _, p := range r.payments {
		counts[p.State]++
	}
	return counts, nil
}

// Delete removes a payment. The service never deletes payments; operators and tests
// use it to simulate a record disappearing mid-pipeline.
func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.payments, id)
}
