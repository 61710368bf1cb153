package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"messaging-platform/internal/message"
	"messaging-platform/internal/routing"
	"messaging-platform/internal/whatsapp"
)

// internalRejectPrefix marks failure events raised by the routing decision
// itself rather than a provider response. The feedback processor skips
// these so a rejection never double-penalizes account health.
const internalRejectPrefix = "Reject Reason: "

// Decider yields the routing verdict for one message.
type Decider interface {
	DetermineSendAction(ctx context.Context, msg message.Payload) routing.Decision
}

// Dispatcher executes one job end to end: decide, send, publish the
// outcome. It implements Handler for the queue.
type Dispatcher struct {
	decider  Decider
	sender   whatsapp.Sender
	outcomes chan<- message.Outcome
	log      *slog.Logger
}

func NewDispatcher(decider Decider, sender whatsapp.Sender, outcomes chan<- message.Outcome, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{decider: decider, sender: sender, outcomes: outcomes, log: log}
}

// Process runs the dispatch state machine for a single job.
//
// SEND attempts delivery and always publishes exactly one outcome event.
// QUEUE publishes nothing and returns a retryable error so the job re-enters
// the queue after backoff. REJECT publishes a failure event tagged with the
// internal reject prefix and fails the job permanently.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	decision := d.decider.DetermineSendAction(ctx, job.Payload)

	switch decision.Action {
	case routing.ActionSend:
		return d.send(ctx, job, decision.AccountID)

	case routing.ActionQueue:
		d.log.Info("send deferred",
			"job_id", job.ID, "attempt", job.Attempt, "reason", decision.Reason)
		return Retryable(fmt.Errorf("dispatch: deferred: %s", decision.Reason))

	case routing.ActionReject:
		d.publishFailure(ctx, job, message.AccountUnknown, &message.SendError{
			Message: internalRejectPrefix + decision.Reason,
		})
		return fmt.Errorf("dispatch: rejected: %s", decision.Reason)

	default:
		d.publishFailure(ctx, job, message.AccountUnknown, &message.SendError{
			Message: fmt.Sprintf("unexpected decision action %q", decision.Action),
		})
		return fmt.Errorf("dispatch: unexpected decision action %q", decision.Action)
	}
}

func (d *Dispatcher) send(ctx context.Context, job Job, accountID string) error {
	res, err := d.sender.SendMessage(ctx, job.Recipient, job.Payload, accountID, job.ID)
	if err != nil {
		// Transport-level failure: the provider never answered, so the
		// outcome is a transient failure from the account's perspective.
		d.publishFailure(ctx, job, accountID, &message.SendError{Message: err.Error()})
		return Retryable(fmt.Errorf("dispatch: send attempt: %w", err))
	}

	if !res.Success {
		sendErr := res.Error
		if sendErr == nil {
			sendErr = &message.SendError{Message: "provider send failed without details"}
		}
		d.publishFailure(ctx, job, accountID, sendErr)
		// A retry re-runs the decision, so a rejection tied to this account
		// ("account disabled" and the like) can route through a different
		// healthy account on the next attempt.
		return Retryable(fmt.Errorf("dispatch: provider rejected: %s", sendErr.Message))
	}

	if res.ProviderMessageID == "" {
		sendErr := &message.SendError{Message: "provider accepted without a message id"}
		d.publishFailure(ctx, job, accountID, sendErr)
		return Retryable(fmt.Errorf("dispatch: send accepted without provider message id"))
	}

	d.publish(ctx, message.Outcome{Success: &message.SentSuccess{
		JobID:             job.ID,
		AccountID:         accountID,
		ProviderMessageID: res.ProviderMessageID,
		Recipient:         job.Recipient,
	}})
	d.log.Info("message sent",
		"job_id", job.ID, "account_id", accountID,
		"provider_message_id", res.ProviderMessageID)
	return nil
}

func (d *Dispatcher) publishFailure(ctx context.Context, job Job, accountID string, sendErr *message.SendError) {
	d.publish(ctx, message.Outcome{Failure: &message.SentFailed{
		JobID:        job.ID,
		AccountID:    accountID,
		Recipient:    job.Recipient,
		ErrorDetails: sendErr,
		MessageType:  job.Payload.Type,
	}})
}

func (d *Dispatcher) publish(ctx context.Context, out message.Outcome) {
	select {
	case d.outcomes <- out:
	case <-ctx.Done():
		d.log.Warn("outcome dropped on shutdown")
	}
}
