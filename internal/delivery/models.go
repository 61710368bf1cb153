package delivery

import "time"

// Delivery statuses, ordered. Webhook events can arrive out of order, so
// transitions only ever move forward in this ordering; failed is terminal.
const (
	StatusAccepted  = "accepted"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

func statusRank(s string) int {
	switch s {
	case StatusAccepted:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// Record is one outbound message's delivery log entry. Created when the
// dispatcher resolves a send attempt, then advanced by provider webhook
// status updates.
type Record struct {
	ID                string    `json:"id"`
	JobID             string    `json:"job_id"`
	AccountID         string    `json:"account_id"`
	Recipient         string    `json:"recipient"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	MessageType       string    `json:"message_type"`
	Status            string    `json:"status"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated delivery metrics. AccountID is
// optional; empty aggregates over all accounts.

type SummaryRequest struct {
	AccountID string    `json:"account_id,omitempty"`
	Range     TimeRange `json:"range"`
}

type Summary struct {
	AccountID string `json:"account_id,omitempty"`

	TotalAttempts int `json:"total_attempts"`
	Sent          int `json:"sent"`
	Delivered     int `json:"delivered"`
	Read          int `json:"read"`
	Failed        int `json:"failed"`

	// DeliveryRate is (delivered + read) over total attempts.
	DeliveryRate float64 `json:"delivery_rate"`
}
