package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"dialer-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// EventSink consumes gateway events. Implemented by the session manager.
type EventSink interface {
	HandleGatewayEvent(ctx context.Context, ev Event) error
}

// WebhookHandler receives gateway event webhooks.
//
// The handler acknowledges with 202 before processing so a slow consumer
// never stalls the gateway into retry storms; the event is applied on a
// detached context afterwards. Ordering and duplicates are the sink's
// problem by contract.
type WebhookHandler struct {
	Sink EventSink

	// Secret enables HMAC signature verification. Empty disables it
	// (local/dev only; production config requires it).
	Secret string

	// ProcessTimeout bounds asynchronous event application.
	ProcessTimeout time.Duration
}

const maxEventBody = 64 << 10

func (h WebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event sink not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.Secret != "" {
		sig := c.GetHeader(SignatureHeader)
		if !VerifySignature(h.Secret, body, sig) {
			log.Warn("gateway webhook signature rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad signature"})
			return
		}
	}

	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn("gateway webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	// Acknowledge first; apply asynchronously.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})

	timeout := h.ProcessTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(logger.With(context.Background(), log), timeout)
		defer cancel()
		if err := h.Sink.HandleGatewayEvent(ctx, ev); err != nil {
			log.Error("gateway event apply failed",
				"session_id", ev.SessionID,
				"external_call_id", ev.ExternalCallID,
				"event_type", string(ev.Type),
				"err", err,
			)
		}
	}()
}
