package account

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{accounts: make(map[string]Account)}
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return Rehydrate(a), nil
}

func (r *MemoryRepo) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.PhoneNumber == phoneNumber {
			return Rehydrate(a), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) GetAllActive(ctx context.Context) ([]*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Account
	for _, a := range r.accounts {
		if a.IsActive {
			out = append(out, Rehydrate(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Save(ctx context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = *a
	return nil
}

func (r *MemoryRepo) UpdateHealthScoreAndStatus(ctx context.Context, id string, score int, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.HealthScore = ClampScore(score)
	a.Status = status
	r.accounts[id] = a
	return nil
}
