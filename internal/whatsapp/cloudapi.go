package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"messaging-platform/internal/message"
)

// Config controls the Cloud API client.
// Keep it config-driven; defaults should be safe and conservative.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string

	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://graph.facebook.com"
	}
	if out.APIVersion == "" {
		out.APIVersion = "v19.0"
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 15 * time.Second
	}
	return out
}

// CloudAPI sends messages through the WhatsApp Cloud API.
//
// The HTTP client is injectable for tests; pass nil to use a default client
// with the configured timeout.
type CloudAPI struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

func NewCloudAPI(cfg Config, client *http.Client, log *slog.Logger) (*CloudAPI, error) {
	cfg = cfg.withDefaults()
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp: access token is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CloudAPI{cfg: cfg, client: client, log: log}, nil
}

// Wire types. These stay private: callers only see message.Payload and
// SendResult.

type apiRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *apiText     `json:"text,omitempty"`
	Template         *apiTemplate `json:"template,omitempty"`
	Image            *apiMedia    `json:"image,omitempty"`
	Document         *apiMedia    `json:"document,omitempty"`
}

type apiText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type apiTemplate struct {
	Name     string      `json:"name"`
	Language apiLanguage `json:"language"`
}

type apiLanguage struct {
	Code string `json:"code"`
}

type apiMedia struct {
	Link string `json:"link"`
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	Transient *bool  `json:"is_transient"`
	TraceID   string `json:"fbtrace_id"`
}

func (c *CloudAPI) SendMessage(ctx context.Context, recipient string, payload message.Payload, accountID, jobID string) (SendResult, error) {
	if recipient == "" || accountID == "" {
		return SendResult{}, fmt.Errorf("whatsapp: recipient and account id are required")
	}
	if !payload.Validate() {
		return SendResult{}, fmt.Errorf("whatsapp: invalid %s payload", payload.Type)
	}

	req, err := buildRequest(recipient, payload)
	if err != nil {
		return SendResult{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, accountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug("sending message",
		"job_id", jobID, "account_id", accountID, "type", string(payload.Type))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return SendResult{}, fmt.Errorf("whatsapp: decode response (status %d): %w", resp.StatusCode, err)
	}

	if out.Error != nil {
		c.log.Warn("provider rejected message",
			"job_id", jobID, "account_id", accountID,
			"code", out.Error.Code, "message", out.Error.Message)
		return SendResult{
			Success: false,
			Error: &message.SendError{
				Code:      out.Error.Code,
				Subcode:   out.Error.Subcode,
				Message:   out.Error.Message,
				Transient: out.Error.Transient,
				TraceID:   out.Error.TraceID,
			},
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return SendResult{
			Success: false,
			Error:   &message.SendError{Message: fmt.Sprintf("unexpected provider response (status %d)", resp.StatusCode)},
		}, nil
	}

	return SendResult{Success: true, ProviderMessageID: out.Messages[0].ID}, nil
}

func buildRequest(recipient string, payload message.Payload) (apiRequest, error) {
	req := apiRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             string(payload.Type),
	}
	switch payload.Type {
	case message.TypeText:
		req.Text = &apiText{Body: payload.Text.Body, PreviewURL: payload.Text.PreviewURL}
	case message.TypeTemplate:
		req.Template = &apiTemplate{
			Name:     payload.Template.Name,
			Language: apiLanguage{Code: payload.Template.LanguageCode},
		}
	case message.TypeImage:
		req.Image = &apiMedia{Link: payload.MediaURL}
	case message.TypeDocument:
		req.Document = &apiMedia{Link: payload.MediaURL}
	default:
		return apiRequest{}, fmt.Errorf("whatsapp: unsupported message type %q", payload.Type)
	}
	return req, nil
}
