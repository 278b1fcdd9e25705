package main

import (
	"database/sql"
	"net/http"
	"time"

	"dialer-engine/internal/agents"
	"dialer-engine/internal/config"
	"dialer-engine/internal/disposition"
	"dialer-engine/internal/gateway"
	"dialer-engine/internal/httpapi"
	"dialer-engine/internal/session"
	"dialer-engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW     gin.HandlerFunc
	agents     *agents.Controller
	sessions   *session.Manager
	finalizer  *disposition.Finalizer
	webhookCfg config.GatewayConfig
	db         *sql.DB
	dialer     gateway.Dialer
	transfer   httpapi.CallTransferrer
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness includes the outbound gateway; a dialer that cannot reach
	// it should not receive agent traffic.
	r.GET("/readyz", func(c *gin.Context) {
		if err := deps.dialer.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "gateway": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Gateway webhooks (public; authenticated by HMAC signature).
	{
		h := gateway.WebhookHandler{
			Sink:   deps.sessions,
			Secret: deps.webhookCfg.WebhookSecret,
		}
		r.POST("/webhooks/gateway/events", h.HandleEvent)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		h := httpapi.Handlers{
			Agents:    deps.agents,
			Sessions:  deps.sessions,
			Finalizer: deps.finalizer,
			Transfer:  deps.transfer,
		}

		agentsGroup := v1.Group("/agents")
		{
			agentsGroup.POST("/:agent_id/status", h.SetAgentStatus)
			agentsGroup.GET("/:agent_id", h.GetAgent)
		}

		sessionsGroup := v1.Group("/sessions")
		{
			sessionsGroup.GET("/:session_id", h.GetSession)
			sessionsGroup.POST("/:session_id/end", h.EndSession)
			sessionsGroup.POST("/:session_id/transfer", h.TransferSession)
			sessionsGroup.POST("/:session_id/finalize", h.FinalizeSession)
		}

		v1.GET("/dispositions", h.ListDispositions)
	}
}
