package routing

import (
	"context"
	"log/slog"
	"sort"

	"messaging-platform/internal/account"
	"messaging-platform/internal/message"
	"messaging-platform/internal/ratelimit"
)

// Engine picks the sender account for an outbound message.
//
// Priority:
//  1) Only active accounts (repository contract)
//  2) Only accounts at or above the healthy-score threshold
//  3) Highest health score first; ties keep repository order
//     (created_at ascending, so the oldest account wins)
//  4) First account with an available rate token
//
// Return a Decision only. No side effects beyond the single consumed token
// (no DB writes, no provider calls). The engine holds no state between
// calls and may run fully in parallel across jobs.
//
// Determinism: for a fixed account set and fixed limiter responses the
// output is fully determined by the ordering above. The stable sort and the
// repository's created_at ordering are the only tie-breaks.

type Engine struct {
	accounts account.Repository
	limiter  ratelimit.Limiter
	log      *slog.Logger
}

func NewEngine(accounts account.Repository, limiter ratelimit.Limiter, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{accounts: accounts, limiter: limiter, log: log}
}

// DetermineSendAction evaluates the account pool for one message attempt.
// All failure modes become Decision values, never errors, so the dispatcher
// always has something to act on.
func (e *Engine) DetermineSendAction(ctx context.Context, msg message.Payload) Decision {
	active, err := e.accounts.GetAllActive(ctx)
	if err != nil {
		e.log.Error("failed to load active accounts", "err", err)
		return Decision{Action: ActionReject, Reason: ReasonRepositoryError}
	}
	if len(active) == 0 {
		e.log.Warn("no active accounts in repository")
		return Decision{Action: ActionReject, Reason: ReasonNoActiveAccounts}
	}
	e.log.Debug("loaded active accounts", "count", len(active))

	candidates := make([]*account.Account, 0, len(active))
	for _, a := range active {
		if a.HealthScore >= account.MinHealthyScore {
			candidates = append(candidates, a)
			continue
		}
		e.log.Debug("account skipped below health threshold",
			"account_id", a.ID, "score", a.HealthScore, "threshold", account.MinHealthyScore)
	}
	if len(candidates) == 0 {
		e.log.Warn("no healthy accounts available")
		return Decision{Action: ActionReject, Reason: ReasonNoHealthyAccounts}
	}

	// Stable: equal scores keep the repository's created_at ordering.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].HealthScore > candidates[j].HealthScore
	})

	for _, a := range candidates {
		granted, err := e.limiter.ConsumeToken(ctx, a.ID, 1)
		if err != nil {
			// A limiter fault for one account must not sink the whole
			// decision; treat it as a denial and move on.
			e.log.Error("rate limiter fault, skipping account", "account_id", a.ID, "err", err)
			continue
		}
		if !granted {
			e.log.Warn("rate limit exceeded for account", "account_id", a.ID)
			continue
		}
		e.log.Info("token consumed, account selected",
			"account_id", a.ID, "score", a.HealthScore)
		return Decision{Action: ActionSend, AccountID: a.ID}
	}

	e.log.Warn("all healthy accounts rate-limited")
	return Decision{Action: ActionQueue, Reason: ReasonRateLimitAllAccounts}
}
