package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"messaging-platform/internal/account"
	"messaging-platform/internal/health"
	"messaging-platform/internal/message"
)

type statusWrite struct {
	id     string
	score  int
	status account.Status
}

// recordingRepo tracks durable status writes on top of the in-memory repo.
type recordingRepo struct {
	*account.MemoryRepo

	mu     sync.Mutex
	writes []statusWrite
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{MemoryRepo: account.NewMemoryRepo()}
}

func (r *recordingRepo) UpdateHealthScoreAndStatus(ctx context.Context, id string, score int, status account.Status) error {
	r.mu.Lock()
	r.writes = append(r.writes, statusWrite{id: id, score: score, status: status})
	r.mu.Unlock()
	return r.MemoryRepo.UpdateHealthScoreAndStatus(ctx, id, score, status)
}

func (r *recordingRepo) recorded() []statusWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statusWrite, len(r.writes))
	copy(out, r.writes)
	return out
}

func seedAccount(t *testing.T, repo account.Repository, id string, score int, status account.Status) {
	t.Helper()
	a := account.New(id, "+55119999"+id, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	a.HealthScore = score
	a.Status = status
	if err := repo.Save(context.Background(), a); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

// seedScore drives the shared store to an exact value via deltas.
func seedScore(t *testing.T, store health.Store, id string, score int) {
	t.Helper()
	if _, err := store.UpdateScore(context.Background(), id, score-health.DefaultScore); err != nil {
		t.Fatalf("seed score: %v", err)
	}
}

func successOutcome(accountID string) message.Outcome {
	return message.Outcome{Success: &message.SentSuccess{
		JobID: "job-1", AccountID: accountID, ProviderMessageID: "wamid.1", Recipient: "+1",
	}}
}

func failureOutcome(accountID string, sendErr *message.SendError) message.Outcome {
	return message.Outcome{Failure: &message.SentFailed{
		JobID: "job-1", AccountID: accountID, Recipient: "+1",
		ErrorDetails: sendErr, MessageType: message.TypeText,
	}}
}

func TestFeedback_SuccessIncrementsScore(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 50, account.StatusWarn)
	seedScore(t, store, "acc-1", 50)

	p := NewFeedbackProcessor(store, repo, nil, nil)
	p.Handle(context.Background(), successOutcome("acc-1"))

	if got := store.Score(context.Background(), "acc-1"); got != 51 {
		t.Fatalf("expected score 51, got %d", got)
	}
	if writes := repo.recorded(); len(writes) != 0 {
		t.Fatalf("status unchanged, no durable write expected, got %v", writes)
	}
}

func TestFeedback_FailureDeltas(t *testing.T) {
	permanent := false

	cases := []struct {
		name    string
		sendErr *message.SendError
		want    int
	}{
		{"transient marked", &message.SendError{Message: "x", Transient: ptrBool(true)}, 45},
		{"transience absent reads transient", &message.SendError{Message: "x"}, 45},
		{"details absent reads transient", nil, 45},
		{"permanent", &message.SendError{Message: "x", Transient: &permanent}, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := health.NewMemoryStore()
			repo := newRecordingRepo()
			seedAccount(t, repo, "acc-1", 50, account.StatusWarn)
			seedScore(t, store, "acc-1", 50)

			p := NewFeedbackProcessor(store, repo, nil, nil)
			p.Handle(context.Background(), failureOutcome("acc-1", tc.sendErr))

			if got := store.Score(context.Background(), "acc-1"); got != tc.want {
				t.Fatalf("expected score %d, got %d", tc.want, got)
			}
		})
	}
}

func ptrBool(b bool) *bool { return &b }

func TestFeedback_StatusChangePersistedOnce(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 34, account.StatusWarn)
	seedScore(t, store, "acc-1", 34)

	p := NewFeedbackProcessor(store, repo, nil, nil)
	// 34 - 5 = 29, crossing into RESTRICTED.
	p.Handle(context.Background(), failureOutcome("acc-1", nil))

	writes := repo.recorded()
	if len(writes) != 1 {
		t.Fatalf("expected exactly one durable write, got %v", writes)
	}
	if writes[0].score != 29 || writes[0].status != account.StatusRestricted {
		t.Fatalf("unexpected write: %+v", writes[0])
	}

	// A second failure stays inside RESTRICTED: no further durable write.
	p.Handle(context.Background(), failureOutcome("acc-1", nil))
	if writes := repo.recorded(); len(writes) != 1 {
		t.Fatalf("expected no second write, got %v", writes)
	}
}

func TestFeedback_BlockedStaysBlocked(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 20, account.StatusBlocked)
	seedScore(t, store, "acc-1", 69)

	p := NewFeedbackProcessor(store, repo, nil, nil)
	p.Handle(context.Background(), successOutcome("acc-1"))

	if writes := repo.recorded(); len(writes) != 0 {
		t.Fatalf("feedback must not clear a block, got %v", writes)
	}
}

func TestFeedback_SkipsDecisionRejections(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 50, account.StatusWarn)
	seedScore(t, store, "acc-1", 50)

	p := NewFeedbackProcessor(store, repo, nil, nil)

	p.Handle(context.Background(), failureOutcome(message.AccountUnknown, &message.SendError{Message: "anything"}))
	p.Handle(context.Background(), failureOutcome("acc-1", &message.SendError{
		Message: internalRejectPrefix + "NO_HEALTHY_ACCOUNTS",
	}))
	p.Handle(context.Background(), failureOutcome("", nil))

	// Success events carrying the marker are equally meaningless.
	seedScore(t, store, message.AccountUnknown, 50)
	p.Handle(context.Background(), successOutcome(message.AccountUnknown))
	p.Handle(context.Background(), successOutcome(""))
	if got := store.Score(context.Background(), message.AccountUnknown); got != 50 {
		t.Fatalf("marker account must stay untouched, got score %d", got)
	}

	if got := store.Score(context.Background(), "acc-1"); got != 50 {
		t.Fatalf("internal rejections must not touch health, got score %d", got)
	}
}

func TestFeedback_UnknownAccountIsLoggedNotFatal(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()

	p := NewFeedbackProcessor(store, repo, nil, nil)
	p.Handle(context.Background(), successOutcome("ghost"))

	// The shared score still moved; only the durable write is skipped.
	if got := store.Score(context.Background(), "ghost"); got != 100 {
		t.Fatalf("unexpected score %d", got)
	}
	if writes := repo.recorded(); len(writes) != 0 {
		t.Fatalf("no durable write expected for unknown account")
	}
}

func TestFeedback_StoreFailureDropsEvent(t *testing.T) {
	store := health.NewMemoryStore()
	store.UpdateErr = errors.New("redis down")
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 50, account.StatusWarn)

	p := NewFeedbackProcessor(store, repo, nil, nil)
	p.Handle(context.Background(), successOutcome("acc-1"))

	if writes := repo.recorded(); len(writes) != 0 {
		t.Fatalf("score update failed, status write must not happen")
	}
}

func TestFeedback_RunConsumesChannel(t *testing.T) {
	store := health.NewMemoryStore()
	repo := newRecordingRepo()
	seedAccount(t, repo, "acc-1", 50, account.StatusWarn)
	seedScore(t, store, "acc-1", 50)

	outcomes := make(chan message.Outcome, 4)
	p := NewFeedbackProcessor(store, repo, outcomes, nil)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	outcomes <- successOutcome("acc-1")
	outcomes <- successOutcome("acc-1")
	close(outcomes)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit on channel close")
	}
	if got := store.Score(context.Background(), "acc-1"); got != 52 {
		t.Fatalf("expected score 52, got %d", got)
	}
}
