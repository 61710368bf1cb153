package routing

// Decision is the verdict for one message attempt.
//
// It must contain *only* what the dispatcher needs to act: the action, the
// chosen account for SEND, and a reason code otherwise.
//
// AccountID is present iff Action == SEND. Reason is present iff
// Action != SEND.

type Decision struct {
	Action    Action `json:"action"`
	AccountID string `json:"account_id,omitempty"`

	// Reason is a stable code intended for internal logs/metrics and the
	// dispatcher's retry classification.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionSend   Action = "SEND"
	ActionQueue  Action = "QUEUE"
	ActionReject Action = "REJECT"
)

// Reason codes. Keep these stable; the dispatcher and feedback processor
// match on them.
const (
	ReasonNoActiveAccounts     = "NO_ACTIVE_ACCOUNTS"
	ReasonRepositoryError      = "REPOSITORY_ERROR"
	ReasonNoHealthyAccounts    = "NO_HEALTHY_ACCOUNTS"
	ReasonRateLimitAllAccounts = "RATE_LIMIT_ALL_ACCOUNTS"
)
