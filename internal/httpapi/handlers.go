package httpapi

import (
	"context"
	"errors"
	"net/http"

	"dialer-engine/internal/agents"
	"dialer-engine/internal/auth"
	"dialer-engine/internal/disposition"
	"dialer-engine/internal/gateway"
	"dialer-engine/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// CallTransferrer moves a live gateway call to another destination.
type CallTransferrer interface {
	Transfer(ctx context.Context, req gateway.TransferRequest) error
}

type Handlers struct {
	Agents    *agents.Controller
	Sessions  *session.Manager
	Finalizer *disposition.Finalizer

	// Transfer is optional; deployments without the call_transfer
	// capability leave it nil.
	Transfer CallTransferrer
}

// actsFor enforces that the token holder may operate on agentID.
func actsFor(c *gin.Context, agentID string) bool {
	claims, ok := auth.ClaimsFromGin(c)
	if !ok || !claims.ActsFor(agentID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not your agent"})
		return false
	}
	return true
}

// --- Agents ---

type setStatusRequest struct {
	Status     string `json:"status"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// SetAgentStatus applies an availability change for an agent.
func (h Handlers) SetAgentStatus(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agents not configured"})
		return
	}
	agentID := c.Param("agent_id")
	if agentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}
	if !actsFor(c, agentID) {
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	a, err := h.Agents.SetStatus(c.Request.Context(), agentID, agents.Status(req.Status), req.CampaignID)
	if err != nil {
		switch {
		case errors.Is(err, agents.ErrNoCampaign),
			errors.Is(err, agents.ErrStatusReserved),
			errors.Is(err, agents.ErrInvalidStatus):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status change failed"})
		}
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetAgent returns the agent's current availability and call accounting.
func (h Handlers) GetAgent(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agents not configured"})
		return
	}
	agentID := c.Param("agent_id")
	if !actsFor(c, agentID) {
		return
	}

	a, err := h.Agents.Get(c.Request.Context(), agentID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

// --- Sessions ---

// GetSession returns a point-in-time view of a call session.
func (h Handlers) GetSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !actsFor(c, s.AgentID) {
		return
	}
	c.JSON(http.StatusOK, s)
}

// EndSession is the agent hanging up an answered call.
func (h Handlers) EndSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	sessionID := c.Param("session_id")

	s, err := h.Sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !actsFor(c, s.AgentID) {
		return
	}

	s, err = h.Sessions.EndByAgent(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, session.ErrInvalidState):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "end failed"})
		}
		return
	}
	c.JSON(http.StatusOK, s)
}

type transferRequest struct {
	Target string `json:"target"`
}

// TransferSession hands an answered call to another number.
func (h Handlers) TransferSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !actsFor(c, s.AgentID) {
		return
	}
	if s.State != session.StateAnswered {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "only answered calls can be transferred"})
		return
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target required"})
		return
	}

	if h.Transfer == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "call transfer not enabled"})
		return
	}
	err = h.Transfer.Transfer(c.Request.Context(), gateway.TransferRequest{
		ExternalCallID: s.ExternalCallID,
		Target:         req.Target,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrCapabilityUnavailable) {
			c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "call transfer not enabled"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "transfer failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

// --- Finalize ---

type finalizeRequest struct {
	Disposition string `json:"disposition"`
	Notes       string `json:"notes,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
}

// FinalizeSession validates the agent's wrap-up submission and persists the
// call record. Retrying an already-finalized session returns the original
// record with 200 instead of an error.
func (h Handlers) FinalizeSession(c *gin.Context) {
	if h.Finalizer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "finalizer not configured"})
		return
	}
	sessionID := c.Param("session_id")

	// Authorize against the live session when it is still known; an
	// evicted session falls through to the idempotent record lookup.
	if h.Sessions != nil {
		if s, err := h.Sessions.Get(c.Request.Context(), sessionID); err == nil {
			if !actsFor(c, s.AgentID) {
				return
			}
		}
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Finalizer.Finalize(c.Request.Context(), disposition.FinalizeRequest{
		SessionID:   sessionID,
		Disposition: req.Disposition,
		Notes:       req.Notes,
		Evidence:    req.Evidence,
	})
	if err != nil {
		var verr *disposition.ValidationError
		switch {
		case errors.As(err, &verr):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "code": verr.Code})
		case errors.Is(err, disposition.ErrSessionNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "finalize failed"})
		}
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// ListDispositions returns the catalog agents may choose from.
func (h Handlers) ListDispositions(c *gin.Context) {
	if h.Finalizer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "finalizer not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispositions": h.Finalizer.Catalog().List()})
}
