package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Webhook security and payload parsing for the provider's event callbacks.
// Business logic (delivery tracking, health feedback) is not made here.

const signatureHeader = "X-Hub-Signature-256"

// SignatureHeader is the request header carrying the webhook HMAC.
func SignatureHeader() string { return signatureHeader }

// VerifySignature checks the sha256= HMAC of the raw request body against
// the app secret. Comparison is constant-time.
func VerifySignature(rawBody []byte, appSecret, header string) bool {
	if len(rawBody) == 0 || appSecret == "" || header == "" {
		return false
	}

	scheme, hexSig, ok := strings.Cut(header, "=")
	if !ok || scheme != "sha256" || hexSig == "" {
		return false
	}
	expected, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), expected)
}

// VerifyHandshake validates the provider's GET subscription handshake.
// On success the caller must echo the challenge back verbatim.
func VerifyHandshake(mode, token, expectedToken string) bool {
	return mode == "subscribe" && expectedToken != "" && token == expectedToken
}

// StatusUpdate is one delivery status transition extracted from a webhook
// event (sent -> delivered -> read, or failed).
type StatusUpdate struct {
	ProviderMessageID string
	Recipient         string
	Status            string
	Timestamp         time.Time

	// ErrorMessage is set for failed statuses when the provider included
	// error details.
	ErrorMessage string
}

// InboundMessage is a user-originated message surfaced by the webhook.
type InboundMessage struct {
	From      string
	Type      string
	Timestamp time.Time
}

// Event is the parsed content of one webhook POST.
type Event struct {
	Statuses []StatusUpdate
	Messages []InboundMessage
}

// Webhook wire format (subset we care about).

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
					Timestamp   string `json:"timestamp"`
					Errors      []struct {
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
				Messages []struct {
					From      string `json:"from"`
					Type      string `json:"type"`
					Timestamp string `json:"timestamp"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseEvent extracts status updates and inbound messages from a raw
// webhook body. Unknown structures yield an empty event, not an error; the
// provider sends many event kinds we do not consume.
func ParseEvent(rawBody []byte) (Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return Event{}, err
	}

	var ev Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, s := range change.Value.Statuses {
				upd := StatusUpdate{
					ProviderMessageID: s.ID,
					Recipient:         s.RecipientID,
					Status:            s.Status,
					Timestamp:         parseEpoch(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					upd.ErrorMessage = s.Errors[0].Title
				}
				ev.Statuses = append(ev.Statuses, upd)
			}
			for _, m := range change.Value.Messages {
				ev.Messages = append(ev.Messages, InboundMessage{
					From:      m.From,
					Type:      m.Type,
					Timestamp: parseEpoch(m.Timestamp),
				})
			}
		}
	}
	return ev, nil
}

func parseEpoch(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
