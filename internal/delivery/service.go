package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messaging-platform/internal/message"
	"messaging-platform/internal/whatsapp"
)

var (
	ErrInvalidRequest = errors.New("delivery: invalid request")
	ErrNotFound       = errors.New("delivery: record not found")
)

// Repository abstracts delivery log persistence.
//
// The log is append-mostly: Insert creates one row per resolved send
// attempt, UpdateStatus advances a row, List feeds the summary.

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*Record, error)
	UpdateStatus(ctx context.Context, id, status, errorMessage string, at time.Time) error
	List(ctx context.Context, accountID string, from, to time.Time) ([]Record, error)
}

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:  repo,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// ApplyOutcome records a resolved send attempt in the delivery log.
// Logging failures here must never fail the dispatch path, so errors are
// logged and swallowed.
func (s *Service) ApplyOutcome(ctx context.Context, out message.Outcome) {
	now := s.clock()
	var rec *Record
	switch {
	case out.Success != nil:
		rec = &Record{
			ID:                uuid.NewString(),
			JobID:             out.Success.JobID,
			AccountID:         out.Success.AccountID,
			Recipient:         out.Success.Recipient,
			ProviderMessageID: out.Success.ProviderMessageID,
			Status:            StatusSent,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	case out.Failure != nil:
		rec = &Record{
			ID:           uuid.NewString(),
			JobID:        out.Failure.JobID,
			AccountID:    out.Failure.AccountID,
			Recipient:    out.Failure.Recipient,
			MessageType:  string(out.Failure.MessageType),
			Status:       StatusFailed,
			ErrorMessage: out.Failure.ErrorDetails.Error(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	default:
		return
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.log.Error("delivery log insert failed", "job_id", rec.JobID, "err", err)
	}
}

// ApplyStatusUpdate advances the record matching a webhook status update.
// Out-of-order updates (a "delivered" arriving after "read") are ignored.
func (s *Service) ApplyStatusUpdate(ctx context.Context, upd whatsapp.StatusUpdate) error {
	if upd.ProviderMessageID == "" {
		return ErrInvalidRequest
	}
	rank := statusRank(upd.Status)
	if rank < 0 {
		s.log.Warn("unknown delivery status ignored",
			"provider_message_id", upd.ProviderMessageID, "status", upd.Status)
		return nil
	}

	rec, err := s.repo.FindByProviderMessageID(ctx, upd.ProviderMessageID)
	if err != nil {
		return err
	}
	if statusRank(rec.Status) >= rank {
		return nil
	}

	at := upd.Timestamp
	if at.IsZero() {
		at = s.clock()
	}
	return s.repo.UpdateStatus(ctx, rec.ID, upd.Status, upd.ErrorMessage, at)
}

// SummaryFor aggregates delivery outcomes over a time range, optionally
// scoped to one account.
func (s *Service) SummaryFor(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}

	rows, err := s.repo.List(ctx, req.AccountID, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{AccountID: req.AccountID}
	for _, r := range rows {
		out.TotalAttempts++
		switch r.Status {
		case StatusSent, StatusAccepted:
			out.Sent++
		case StatusDelivered:
			out.Delivered++
		case StatusRead:
			out.Read++
		case StatusFailed:
			out.Failed++
		}
	}
	if out.TotalAttempts > 0 {
		out.DeliveryRate = float64(out.Delivered+out.Read) / float64(out.TotalAttempts)
	}
	return out, nil
}
