// Package health tracks per-account health scores in shared atomic storage.
//
// The store is one of the two storage-facing ports the routing core depends
// on (the other is the rate limiter). Concurrently-processed jobs update the
// same account; the storage layer, not the caller, resolves those races via
// an atomic increment primitive.
package health

import "context"

const (
	// DefaultScore is returned for accounts with no stored score.
	DefaultScore = 100
)

// Store is the health-score contract.
//
// Score degrades to DefaultScore on backing-store failure (callers must not
// fail a decision because the score could not be read). UpdateScore
// propagates backing-store errors; callers decide whether they are
// transient.
type Store interface {
	// Score returns the stored score for the account, or DefaultScore
	// when absent.
	Score(ctx context.Context, accountID string) int

	// UpdateScore atomically adds delta to the stored value, clamps the
	// result to [account.MinScore, account.MaxScore], persists the clamped
	// value and returns it.
	UpdateScore(ctx context.Context, accountID string, delta int) (int, error)
}
