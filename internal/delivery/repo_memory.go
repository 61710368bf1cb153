package delivery

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory delivery log for tests.

type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *MemoryRepo) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ProviderMessageID == providerMessageID && providerMessageID != "" {
			rec := r.records[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id, status, errorMessage string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i].Status = status
			if errorMessage != "" {
				r.records[i].ErrorMessage = errorMessage
			}
			r.records[i].UpdatedAt = at
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, accountID string, from, to time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if accountID != "" && rec.AccountID != accountID {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
