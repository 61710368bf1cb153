package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records through the public API.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.AccountID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAccountRegistered records the creation of a sender account.
func (s *Service) LogAccountRegistered(ctx context.Context, actorUserID, actorRole, ip, accountID, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAccountRegistered,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AccountID:   accountID,
		Message:     "account registered",
		Metadata:    metadata,
	})
}

// LogActivation records an activate/deactivate toggle.
func (s *Service) LogActivation(ctx context.Context, actorUserID, actorRole, ip, accountID string, active bool) error {
	msg := "account deactivated"
	if active {
		msg = "account activated"
	}
	return s.Append(ctx, Event{
		Type:        EventTypeAccountActivation,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AccountID:   accountID,
		Message:     msg,
	})
}

// LogStatusOverride records an explicit status override. This is the only
// path that can clear a block, so the before/after pair goes into metadata.
func (s *Service) LogStatusOverride(ctx context.Context, actorUserID, actorRole, ip, accountID, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeStatusOverride,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AccountID:   accountID,
		Message:     "status override applied",
		Metadata:    metadata,
	})
}
