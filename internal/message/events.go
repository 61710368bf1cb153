package message

// Outcome event names. These are part of the feedback contract between the
// dispatcher and the health feedback processor.
const (
	EventSentSuccess = "message.sent.success"
	EventSentFailed  = "message.sent.failed"
)

// AccountUnknown marks outcomes for which no real account was ever chosen
// (the decision itself failed). Feedback must skip these.
const AccountUnknown = "unknown"

// SendError carries the provider-level failure details of a send attempt.
//
// Transient distinguishes retry-worthy failures from permanent ones; nil
// means the provider did not say, and feedback biases toward transient.
type SendError struct {
	Code      int    `json:"code,omitempty"`
	Subcode   int    `json:"error_subcode,omitempty"`
	Message   string `json:"message"`
	Transient *bool  `json:"is_transient,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

func (e *SendError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// IsTransient reports the provider's transience marker, defaulting to true
// when the marker is absent or unreadable.
func (e *SendError) IsTransient() bool {
	if e == nil || e.Transient == nil {
		return true
	}
	return *e.Transient
}

// SentSuccess is emitted after a confirmed send.
type SentSuccess struct {
	JobID             string `json:"job_id"`
	AccountID         string `json:"account_id"`
	ProviderMessageID string `json:"provider_message_id"`
	Recipient         string `json:"recipient"`
}

// SentFailed is emitted after a failed send attempt, or for a rejected
// decision (with AccountID == AccountUnknown or an internal-reject error).
type SentFailed struct {
	JobID        string     `json:"job_id"`
	AccountID    string     `json:"account_id"`
	Recipient    string     `json:"recipient"`
	ErrorDetails *SendError `json:"error_details,omitempty"`
	MessageType  Type       `json:"message_type"`
}

// Outcome is the union delivered to the feedback processor. Exactly one of
// Success/Failure is set.
type Outcome struct {
	Success *SentSuccess
	Failure *SentFailed
}
