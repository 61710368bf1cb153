package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"messaging-platform/internal/account"
	"messaging-platform/internal/audit"
	"messaging-platform/internal/auth"
	"messaging-platform/internal/delivery"
	"messaging-platform/internal/dispatch"
	"messaging-platform/internal/health"
	"messaging-platform/internal/message"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth       *auth.Manager
	Accounts   account.Repository
	Health     health.Store
	Queue      *dispatch.Queue
	Deliveries *delivery.Service
	Audit      *audit.Service
	Log        *slog.Logger

	clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.clock != nil {
		return h.clock()
	}
	return time.Now().UTC()
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Message intake ---

type enqueueMessageRequest struct {
	Recipient string            `json:"recipient"`
	Type      message.Type      `json:"type"`
	Text      *message.Text     `json:"text,omitempty"`
	Template  *message.Template `json:"template,omitempty"`
	MediaURL  string            `json:"media_url,omitempty"`
}

// EnqueueMessage accepts an outbound message and returns 202 with the job
// id. Routing, sending and retries happen asynchronously.
func (h Handlers) EnqueueMessage(c *gin.Context) {
	if h.Queue == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "queue not configured"})
		return
	}
	var req enqueueMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	payload := message.Payload{
		Type:     req.Type,
		Text:     req.Text,
		Template: req.Template,
		MediaURL: req.MediaURL,
	}
	if req.Recipient == "" || !payload.Validate() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "recipient and a valid payload are required"})
		return
	}

	jobID, err := h.Queue.Enqueue(req.Recipient, payload)
	if err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "queue full, retry later"})
			return
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// --- Account admin ---

type registerAccountRequest struct {
	PhoneNumber string `json:"phone_number"`
	DisplayName string `json:"display_name,omitempty"`
}

func (h Handlers) RegisterAccount(c *gin.Context) {
	var req registerAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number required"})
		return
	}

	if _, err := h.Accounts.FindByPhoneNumber(c.Request.Context(), req.PhoneNumber); err == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "phone_number already registered"})
		return
	} else if !errors.Is(err, account.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return
	}

	a := account.New(uuid.NewString(), req.PhoneNumber, h.now())
	a.DisplayName = req.DisplayName
	if err := h.Accounts.Save(c.Request.Context(), a); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account save failed"})
		return
	}

	h.auditAccount(c, func(actorID, actorRole, ip string) error {
		return h.Audit.LogAccountRegistered(c.Request.Context(), actorID, actorRole, ip, a.ID, "")
	})
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) ListAccounts(c *gin.Context) {
	accounts, err := h.Accounts.GetAllActive(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account list failed"})
		return
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h Handlers) SetAccountActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "active (bool) required"})
		return
	}

	a, ok := h.loadAccount(c)
	if !ok {
		return
	}
	a.SetActive(*req.Active, h.now())
	if err := h.Accounts.Save(c.Request.Context(), a); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account save failed"})
		return
	}

	h.auditAccount(c, func(actorID, actorRole, ip string) error {
		return h.Audit.LogActivation(c.Request.Context(), actorID, actorRole, ip, a.ID, *req.Active)
	})
	c.JSON(http.StatusOK, a)
}

type overrideStatusRequest struct {
	Status account.Status `json:"status"`
}

// OverrideAccountStatus is the only path that can clear a BLOCKED account.
func (h Handlers) OverrideAccountStatus(c *gin.Context) {
	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	switch req.Status {
	case account.StatusHealthy, account.StatusWarn, account.StatusRestricted, account.StatusBlocked:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	a, ok := h.loadAccount(c)
	if !ok {
		return
	}
	from := a.Status
	a.SetStatus(req.Status, h.now())
	if err := h.Accounts.Save(c.Request.Context(), a); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account save failed"})
		return
	}

	h.auditAccount(c, func(actorID, actorRole, ip string) error {
		meta := fmt.Sprintf(`{"from":%q,"to":%q}`, from, req.Status)
		return h.Audit.LogStatusOverride(c.Request.Context(), actorID, actorRole, ip, a.ID, meta)
	})
	c.JSON(http.StatusOK, a)
}

// GetAccountHealth returns the durable account state alongside the live
// score from the shared health store.
func (h Handlers) GetAccountHealth(c *gin.Context) {
	a, ok := h.loadAccount(c)
	if !ok {
		return
	}
	live := a.HealthScore
	if h.Health != nil {
		live = h.Health.Score(c.Request.Context(), a.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":   a.ID,
		"status":       a.Status,
		"stored_score": a.HealthScore,
		"live_score":   live,
		"is_active":    a.IsActive,
		"healthy":      a.IsHealthyForSending(),
		"last_update":  a.LastHealthUpdateAt,
	})
}

// --- Delivery reporting ---

func (h Handlers) DeliverySummary(c *gin.Context) {
	if h.Deliveries == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "delivery service not configured"})
		return
	}
	from, err1 := time.Parse(time.RFC3339, c.Query("from"))
	to, err2 := time.Parse(time.RFC3339, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC3339 timestamps"})
		return
	}

	sum, err := h.Deliveries.SummaryFor(c.Request.Context(), delivery.SummaryRequest{
		AccountID: c.Query("account_id"),
		Range:     delivery.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, delivery.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- helpers ---

func (h Handlers) loadAccount(c *gin.Context) (*account.Account, bool) {
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account id required"})
		return nil, false
	}
	a, err := h.Accounts.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return nil, false
	}
	return a, true
}

// auditAccount records an admin action with the caller's identity. Audit is
// best-effort; failures are logged, never surfaced to the client.
func (h Handlers) auditAccount(c *gin.Context, log func(actorID, actorRole, ip string) error) {
	if h.Audit == nil {
		return
	}
	actorID, _ := auth.UserID(c.Request.Context())
	actorRole, _ := auth.Role(c.Request.Context())
	if err := log(actorID, actorRole, c.ClientIP()); err != nil {
		h.logger().Warn("audit append failed", "err", err)
	}
}
