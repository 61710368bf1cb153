package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"messaging-platform/internal/message"
	"messaging-platform/internal/routing"
	"messaging-platform/internal/whatsapp"
)

type stubDecider struct {
	decision routing.Decision
}

func (s *stubDecider) DetermineSendAction(ctx context.Context, msg message.Payload) routing.Decision {
	return s.decision
}

type stubSender struct {
	mu      sync.Mutex
	calls   []string // account ids in call order
	result  whatsapp.SendResult
	sendErr error
}

func (s *stubSender) SendMessage(ctx context.Context, recipient string, payload message.Payload, accountID, jobID string) (whatsapp.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, accountID)
	return s.result, s.sendErr
}

func textJob() Job {
	return Job{
		ID:        "job-1",
		Recipient: "+5511999990000",
		Payload:   message.Payload{Type: message.TypeText, Text: &message.Text{Body: "hi"}},
		Attempt:   1,
	}
}

func drainOne(t *testing.T, ch <-chan message.Outcome) message.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	default:
		t.Fatalf("expected an outcome event")
		return message.Outcome{}
	}
}

func assertNoOutcome(t *testing.T, ch <-chan message.Outcome) {
	t.Helper()
	select {
	case out := <-ch:
		t.Fatalf("unexpected outcome event: %+v", out)
	default:
	}
}

func TestDispatcher_SendSuccess(t *testing.T) {
	outcomes := make(chan message.Outcome, 4)
	sender := &stubSender{result: whatsapp.SendResult{Success: true, ProviderMessageID: "wamid.1"}}
	d := NewDispatcher(&stubDecider{decision: routing.Decision{Action: routing.ActionSend, AccountID: "acc-1"}}, sender, outcomes, nil)

	if err := d.Process(context.Background(), textJob()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	out := drainOne(t, outcomes)
	if out.Success == nil {
		t.Fatalf("expected success outcome, got %+v", out)
	}
	if out.Success.AccountID != "acc-1" || out.Success.ProviderMessageID != "wamid.1" || out.Success.JobID != "job-1" {
		t.Fatalf("unexpected success event: %+v", out.Success)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "acc-1" {
		t.Fatalf("expected one send to acc-1, got %v", sender.calls)
	}
}

func TestDispatcher_TransportErrorIsRetryable(t *testing.T) {
	outcomes := make(chan message.Outcome, 4)
	sender := &stubSender{sendErr: errors.New("connection reset")}
	d := NewDispatcher(&stubDecider{decision: routing.Decision{Action: routing.ActionSend, AccountID: "acc-1"}}, sender, outcomes, nil)

	err := d.Process(context.Background(), textJob())
	if err == nil || !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	out := drainOne(t, outcomes)
	if out.Failure == nil || out.Failure.AccountID != "acc-1" {
		t.Fatalf("expected failure outcome for acc-1, got %+v", out)
	}
	if out.Failure.ErrorDetails == nil || !out.Failure.ErrorDetails.IsTransient() {
		t.Fatalf("transport failures must read as transient: %+v", out.Failure.ErrorDetails)
	}
}

func TestDispatcher_ProviderRejection(t *testing.T) {
	transient := true
	permanent := false

	t.Run("transient is retryable", func(t *testing.T) {
		outcomes := make(chan message.Outcome, 4)
		sender := &stubSender{result: whatsapp.SendResult{
			Success: false,
			Error:   &message.SendError{Code: 131048, Message: "rate limit hit", Transient: &transient},
		}}
		d := NewDispatcher(&stubDecider{decision: routing.Decision{Action: routing.ActionSend, AccountID: "acc-1"}}, sender, outcomes, nil)

		err := d.Process(context.Background(), textJob())
		if !IsRetryable(err) {
			t.Fatalf("expected retryable error, got %v", err)
		}
		out := drainOne(t, outcomes)
		if out.Failure == nil || out.Failure.ErrorDetails.Code != 131048 {
			t.Fatalf("expected provider error details, got %+v", out.Failure)
		}
	})

	// A permanent rejection may be specific to the chosen account, so the
	// job is still retried: the re-run decision can pick another account.
	t.Run("permanent is retryable too", func(t *testing.T) {
		outcomes := make(chan message.Outcome, 4)
		sender := &stubSender{result: whatsapp.SendResult{
			Success: false,
			Error:   &message.SendError{Code: 10, Message: "account disabled", Transient: &permanent},
		}}
		d := NewDispatcher(&stubDecider{decision: routing.Decision{Action: routing.ActionSend, AccountID: "acc-1"}}, sender, outcomes, nil)

		err := d.Process(context.Background(), textJob())
		if err == nil || !IsRetryable(err) {
			t.Fatalf("expected retryable error, got %v", err)
		}
		out := drainOne(t, outcomes)
		if out.Failure == nil || out.Failure.ErrorDetails.IsTransient() {
			t.Fatalf("expected permanent failure event, got %+v", out.Failure)
		}
	})
}

func TestDispatcher_SuccessWithoutMessageIDIsFailure(t *testing.T) {
	outcomes := make(chan message.Outcome, 4)
	sender := &stubSender{result: whatsapp.SendResult{Success: true}}
	d := NewDispatcher(&stubDecider{decision: routing.Decision{Action: routing.ActionSend, AccountID: "acc-1"}}, sender, outcomes, nil)

	err := d.Process(context.Background(), textJob())
	if err == nil || !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	out := drainOne(t, outcomes)
	if out.Failure == nil || out.Failure.AccountID != "acc-1" {
		t.Fatalf("expected failure outcome for acc-1, got %+v", out)
	}
	if out.Success != nil {
		t.Fatalf("a send without a provider message id must not count as success")
	}
}

func TestDispatcher_QueueEmitsNoOutcome(t *testing.T) {
	outcomes := make(chan message.Outcome, 4)
	sender := &stubSender{}
	d := NewDispatcher(&stubDecider{decision: routing.Decision{
		Action: routing.ActionQueue, Reason: routing.ReasonRateLimitAllAccounts,
	}}, sender, outcomes, nil)

	err := d.Process(context.Background(), textJob())
	if !IsRetryable(err) {
		t.Fatalf("deferral must be retryable, got %v", err)
	}
	assertNoOutcome(t, outcomes)
	if len(sender.calls) != 0 {
		t.Fatalf("deferred job must not reach the sender")
	}
}

func TestDispatcher_RejectIsPermanentAndTagged(t *testing.T) {
	outcomes := make(chan message.Outcome, 4)
	d := NewDispatcher(&stubDecider{decision: routing.Decision{
		Action: routing.ActionReject, Reason: routing.ReasonNoHealthyAccounts,
	}}, &stubSender{}, outcomes, nil)

	err := d.Process(context.Background(), textJob())
	if err == nil || IsRetryable(err) {
		t.Fatalf("rejection must be terminal, got %v", err)
	}

	out := drainOne(t, outcomes)
	if out.Failure == nil {
		t.Fatalf("expected failure outcome")
	}
	if out.Failure.AccountID != message.AccountUnknown {
		t.Fatalf("rejections carry the unknown account marker, got %q", out.Failure.AccountID)
	}
	if !strings.HasPrefix(out.Failure.ErrorDetails.Message, internalRejectPrefix) {
		t.Fatalf("expected internal reject tag, got %q", out.Failure.ErrorDetails.Message)
	}
	if !strings.Contains(out.Failure.ErrorDetails.Message, routing.ReasonNoHealthyAccounts) {
		t.Fatalf("expected reason code in message, got %q", out.Failure.ErrorDetails.Message)
	}
}

// countingHandler fails the first n attempts, then succeeds. done receives
// the total attempt count once the job resolves.
type countingHandler struct {
	mu       sync.Mutex
	failures int
	failWith func(attempt int) error
	attempts int
	done     chan int
}

func (h *countingHandler) Process(ctx context.Context, job Job) error {
	h.mu.Lock()
	h.attempts++
	n := h.attempts
	h.mu.Unlock()
	if n <= h.failures {
		return h.failWith(n)
	}
	h.done <- n
	return nil
}

func TestQueue_RetriesWithBackoff(t *testing.T) {
	h := &countingHandler{
		failures: 2,
		failWith: func(attempt int) error {
			return Retryable(fmt.Errorf("attempt %d failed", attempt))
		},
		done: make(chan int, 1),
	}
	q := NewQueue(Config{Workers: 2, MaxAttempts: 3, BackoffBase: 5 * time.Millisecond}, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	if _, err := q.Enqueue("+1", message.Payload{Type: message.TypeText, Text: &message.Text{Body: "x"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case n := <-h.done:
		if n != 3 {
			t.Fatalf("expected success on attempt 3, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not resolve in time")
	}
}

func TestQueue_PermanentErrorDoesNotRetry(t *testing.T) {
	resolved := make(chan struct{}, 4)
	h := &countingHandler{
		failures: 10,
		failWith: func(attempt int) error {
			resolved <- struct{}{}
			return errors.New("terminal")
		},
		done: make(chan int, 1),
	}
	q := NewQueue(Config{Workers: 1, MaxAttempts: 3, BackoffBase: time.Millisecond}, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	if _, err := q.Enqueue("+1", message.Payload{Type: message.TypeText, Text: &message.Text{Body: "x"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	<-resolved
	select {
	case <-resolved:
		t.Fatalf("terminal failure must not be retried")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	q := NewQueue(Config{Workers: 1}, &countingHandler{done: make(chan int, 1)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Stop()

	if _, err := q.Enqueue("+1", message.Payload{Type: message.TypeText, Text: &message.Text{Body: "x"}}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_FullBuffer(t *testing.T) {
	q := NewQueue(Config{Workers: 1, Buffer: 1}, &countingHandler{done: make(chan int, 1)}, nil)
	// Not started: the single buffer slot fills and the next push overflows.
	if _, err := q.Enqueue("+1", message.Payload{Type: message.TypeText, Text: &message.Text{Body: "x"}}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := q.Enqueue("+1", message.Payload{Type: message.TypeText, Text: &message.Text{Body: "x"}}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
