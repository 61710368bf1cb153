package main

import (
	"messaging-platform/internal/config"
	"messaging-platform/internal/httpapi"
	"messaging-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, h httpapi.Handlers, wh httpapi.WebhookHandlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "env": cfg.App.Env})
	})

	// Provider webhooks (public). Authenticity comes from the HMAC
	// signature over the raw body, not from JWT.
	r.GET("/webhooks/whatsapp", wh.VerifySubscription)
	r.POST("/webhooks/whatsapp", wh.Receive)

	// AUTH routes (token issuance).
	// NOTE: placeholder login; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// MESSAGE intake: operators and machine callers.
		messages := v1.Group("/messages")
		messages.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleService))
		{
			messages.POST("", h.EnqueueMessage)
		}

		// ADMIN routes: account pool management and reporting.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/accounts", h.RegisterAccount)
			admin.GET("/accounts", h.ListAccounts)
			admin.POST("/accounts/:id/active", h.SetAccountActive)
			admin.POST("/accounts/:id/status", h.OverrideAccountStatus)
			admin.GET("/accounts/:id/health", h.GetAccountHealth)
			admin.GET("/deliveries/summary", h.DeliverySummary)
		}
	}
}
