package account

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("account: not found")

// Repository is the persistence contract for sender accounts.
//
// Ordering contract: GetAllActive returns accounts ordered by created_at
// ascending. The decision engine's tie-break (oldest account wins at equal
// score) depends on this, so implementations must honor it.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByPhoneNumber(ctx context.Context, phoneNumber string) (*Account, error)
	GetAllActive(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, a *Account) error
	UpdateHealthScoreAndStatus(ctx context.Context, id string, score int, status Status) error
}
