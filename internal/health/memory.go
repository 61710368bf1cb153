package health

import (
	"context"
	"sync"

	"messaging-platform/internal/account"
)

// MemoryStore is an in-memory Store useful for tests.
// It mirrors the redis semantics: absent keys read as DefaultScore, and the
// increment + clamp is atomic per account.

type MemoryStore struct {
	mu     sync.Mutex
	scores map[string]int

	// UpdateErr, when set, is returned by UpdateScore to simulate a
	// backing-store failure.
	UpdateErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]int)}
}

func (s *MemoryStore) Score(ctx context.Context, accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[accountID]
	if !ok {
		return DefaultScore
	}
	return score
}

func (s *MemoryStore) UpdateScore(ctx context.Context, accountID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return 0, s.UpdateErr
	}
	score, ok := s.scores[accountID]
	if !ok {
		score = DefaultScore
	}
	score = account.ClampScore(score + delta)
	s.scores[accountID] = score
	return score, nil
}
