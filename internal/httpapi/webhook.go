package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"messaging-platform/internal/delivery"
	"messaging-platform/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// WebhookHandlers terminates the provider's callback surface. These routes
// are public; authenticity comes from the HMAC signature, not from JWT.

type WebhookHandlers struct {
	AppSecret   string
	VerifyToken string
	Deliveries  *delivery.Service
	Log         *slog.Logger
}

func (h WebhookHandlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// VerifySubscription answers the provider's GET handshake by echoing the
// challenge verbatim on success.
func (h WebhookHandlers) VerifySubscription(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if !whatsapp.VerifyHandshake(mode, token, h.VerifyToken) {
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive ingests a webhook POST. Invalid signatures get the same 200 as
// valid ones so callers cannot probe the secret; the event is just dropped.
func (h WebhookHandlers) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusOK, "ok")
		return
	}

	sig := c.GetHeader(whatsapp.SignatureHeader())
	if !whatsapp.VerifySignature(body, h.AppSecret, sig) {
		h.logger().Warn("webhook signature rejected", "remote", c.ClientIP())
		c.String(http.StatusOK, "ok")
		return
	}

	ev, err := whatsapp.ParseEvent(body)
	if err != nil {
		h.logger().Warn("webhook payload unreadable", "err", err)
		c.String(http.StatusOK, "ok")
		return
	}

	for _, upd := range ev.Statuses {
		if h.Deliveries == nil {
			break
		}
		if err := h.Deliveries.ApplyStatusUpdate(c.Request.Context(), upd); err != nil {
			if errors.Is(err, delivery.ErrNotFound) {
				h.logger().Warn("status update for unknown message",
					"provider_message_id", upd.ProviderMessageID, "status", upd.Status)
				continue
			}
			h.logger().Error("status update failed",
				"provider_message_id", upd.ProviderMessageID, "err", err)
		}
	}
	if n := len(ev.Messages); n > 0 {
		h.logger().Debug("inbound messages received", "count", n)
	}

	c.String(http.StatusOK, "ok")
}
