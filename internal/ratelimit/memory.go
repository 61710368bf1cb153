package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process Limiter with the same fixed-window
// semantics as the redis implementation. Useful for tests; it cannot
// coordinate budgets across processes.

type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*windowEntry

	// clock is injectable for deterministic tests.
	clock func() time.Time

	// ConsumeErr, when set, is returned by ConsumeToken to simulate a
	// backing-store failure.
	ConsumeErr error
}

type windowEntry struct {
	windowStart  time.Time
	used         int
	blockedUntil time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*windowEntry),
		clock:   time.Now,
	}
}

// SetClock overrides the limiter's time source.
func (l *MemoryLimiter) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

func (l *MemoryLimiter) ConsumeToken(ctx context.Context, accountID string, cost int) (bool, error) {
	if accountID == "" || cost <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ConsumeErr != nil {
		return false, l.ConsumeErr
	}

	now := l.clock()
	e, ok := l.entries[accountID]
	if !ok {
		e = &windowEntry{windowStart: now}
		l.entries[accountID] = e
	}

	if now.Before(e.blockedUntil) {
		return false, nil
	}
	if now.Sub(e.windowStart) >= l.cfg.Window {
		e.windowStart = now
		e.used = 0
	}
	if e.used+cost > l.cfg.Points {
		e.blockedUntil = now.Add(l.cfg.BlockWindow)
		return false, nil
	}
	e.used += cost
	return true, nil
}
