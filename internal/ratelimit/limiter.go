// Package ratelimit bounds how many sends each account may perform per
// time window. Budgets are keyed per account and backed by shared atomic
// storage so that concurrent workers cannot over-grant a window.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the token-budget contract.
//
// ConsumeToken returns true iff cost tokens were available and atomically
// deducted from the account's current window. Invalid input (empty
// accountID, cost <= 0) returns false without consuming and without error.
// A backing-store failure returns (false, err): the caller treats the token
// as unavailable, never as granted.
type Limiter interface {
	ConsumeToken(ctx context.Context, accountID string, cost int) (bool, error)
}

// Config controls the fixed-window budget.
type Config struct {
	// Points is the number of tokens replenished every Window.
	Points int

	// Window is the replenishment period.
	Window time.Duration

	// BlockWindow is how long an account stays blocked after exhausting
	// its window. Zero means 2x Window.
	BlockWindow time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.Points <= 0 {
		out.Points = 10
	}
	if out.Window <= 0 {
		out.Window = time.Second
	}
	if out.BlockWindow <= 0 {
		// Short post-exhaustion block to smooth bursts.
		out.BlockWindow = 2 * out.Window
	}
	return out
}
