package whatsapp

import (
	"context"

	"messaging-platform/internal/message"
)

// Sender is the provider-agnostic outbound port used by the dispatcher.
//
// Rules:
// - No provider HTTP calls outside whatsapp adapters.
// - accountID is the provider-assigned phone number id to send from.
// - jobID is forwarded for correlation/logging only.
//
// A transport-level failure (connection refused, timeout) is returned as
// err. A provider-level rejection comes back as a SendResult with
// Success=false and Error populated, so callers can inspect the transience
// marker.
type Sender interface {
	SendMessage(ctx context.Context, recipient string, payload message.Payload, accountID, jobID string) (SendResult, error)
}

// SendResult is the outcome of one provider send attempt.
type SendResult struct {
	Success bool `json:"success"`

	// ProviderMessageID is the provider's id for the accepted message.
	// Required when Success is true.
	ProviderMessageID string `json:"provider_message_id,omitempty"`

	Error *message.SendError `json:"error,omitempty"`
}
