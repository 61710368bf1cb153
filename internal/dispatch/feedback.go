package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"messaging-platform/internal/account"
	"messaging-platform/internal/health"
	"messaging-platform/internal/message"
)

// Health score deltas applied per outcome event.
const (
	deltaSuccess          = 1
	deltaTransientFailure = -5
	deltaPermanentFailure = -20
)

// FeedbackProcessor consumes outcome events and folds them into account
// health: score delta in the shared store, then a durable status update
// when the derived status changed.
//
// Feedback is best effort. A persistence failure is logged and the event is
// dropped; the next outcome for the account converges the state again.
type FeedbackProcessor struct {
	health   health.Store
	accounts account.Repository
	outcomes <-chan message.Outcome
	log      *slog.Logger
	clock    func() time.Time
}

func NewFeedbackProcessor(store health.Store, accounts account.Repository, outcomes <-chan message.Outcome, log *slog.Logger) *FeedbackProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &FeedbackProcessor{
		health:   store,
		accounts: accounts,
		outcomes: outcomes,
		log:      log,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source for tests.
func (p *FeedbackProcessor) SetClock(clock func() time.Time) { p.clock = clock }

// Run consumes outcomes until ctx is canceled or the channel closes.
func (p *FeedbackProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-p.outcomes:
			if !ok {
				return
			}
			p.Handle(ctx, out)
		}
	}
}

// Handle applies one outcome event.
func (p *FeedbackProcessor) Handle(ctx context.Context, out message.Outcome) {
	switch {
	case out.Success != nil:
		p.handleSuccess(ctx, out.Success)
	case out.Failure != nil:
		p.handleFailure(ctx, out.Failure)
	default:
		p.log.Warn("empty outcome event dropped")
	}
}

func (p *FeedbackProcessor) handleSuccess(ctx context.Context, ev *message.SentSuccess) {
	if ev.AccountID == "" || ev.AccountID == message.AccountUnknown {
		return
	}
	p.applyDelta(ctx, message.EventSentSuccess, ev.AccountID, deltaSuccess)
}

func (p *FeedbackProcessor) handleFailure(ctx context.Context, ev *message.SentFailed) {
	// Decision-level rejections never reached a real account, so there is
	// no health signal in them.
	if ev.AccountID == "" || ev.AccountID == message.AccountUnknown {
		return
	}
	if ev.ErrorDetails != nil && strings.HasPrefix(ev.ErrorDetails.Message, internalRejectPrefix) {
		return
	}

	delta := deltaTransientFailure
	if ev.ErrorDetails != nil && !ev.ErrorDetails.IsTransient() {
		delta = deltaPermanentFailure
	}
	p.applyDelta(ctx, message.EventSentFailed, ev.AccountID, delta)
}

func (p *FeedbackProcessor) applyDelta(ctx context.Context, event, accountID string, delta int) {
	newScore, err := p.health.UpdateScore(ctx, accountID, delta)
	if err != nil {
		p.log.Error("health score update failed",
			"event", event, "account_id", accountID, "delta", delta, "err", err)
		return
	}

	newStatus := account.StatusForScore(newScore)

	acc, err := p.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			p.log.Warn("outcome for unknown account",
				"event", event, "account_id", accountID)
			return
		}
		p.log.Error("account lookup failed",
			"event", event, "account_id", accountID, "err", err)
		return
	}

	// BLOCKED is sticky; only an explicit administrative override clears it.
	if acc.Status == account.StatusBlocked || acc.Status == newStatus {
		return
	}

	if err := p.accounts.UpdateHealthScoreAndStatus(ctx, accountID, newScore, newStatus); err != nil {
		p.log.Error("account status update failed",
			"event", event, "account_id", accountID,
			"score", newScore, "status", string(newStatus), "err", err)
		return
	}
	p.log.Info("account status changed",
		"account_id", accountID, "score", newScore,
		"from", string(acc.Status), "to", string(newStatus))
}
