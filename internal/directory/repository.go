package directory

import (
	"context"
	"sort"
	"sync"
)

// Repository stores accounts and aliases.
type Repository interface {
	SaveAccount(ctx context.Context, a Account) error
	SaveAlias(ctx context.Context, a Alias) error
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByNumber(ctx context.Context, routing, number string) (Account, error)
	Alias(ctx context.Context, t AliasType, value string) (Alias, error)
	Aliases(ctx context.Context) ([]Alias, error)
}

type aliasKey struct {
	t     AliasType
	value string
}

type accountKey struct {
	routing string
	number  string
}

// MemoryRepository is an in-memory Repository used in development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	byNumber map[accountKey]string
	aliases  map[aliasKey]Alias
}

// NewMemoryRepository constructs an empty directory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]Account),
		byNumber: make(map[accountKey]string),
		aliases:  make(map[aliasKey]Alias),
	}
}

func (r *MemoryRepository) SaveAccount(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
	r.byNumber[accountKey{a.Routing, a.Number}] = a.ID
	return nil
}

func (r *MemoryRepository) SaveAlias(_ context.Context, a Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.AccountID]; !ok {
		return ErrNotFound
	}
	r.aliases[aliasKey{a.Type, a.Value}] = a
	return nil
}

func (r *MemoryRepository) AccountByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) AccountByNumber(_ context.Context, routing, number string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[accountKey{routing, number}]
	if !ok {
		return Account{}, ErrNotFound
	}
	return r.accounts[id], nil
}

func (r *MemoryRepository) Alias(_ context.Context, t AliasType, value string) (Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.aliases[aliasKey{t, value}]
	if !ok {
		return Alias{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) Aliases(_ context.Context) ([]Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alias, 0, len(r.aliases))
	for _, a := range r.aliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}
