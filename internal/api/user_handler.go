package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/middleware"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// UserHandler serves the account routes. All of them run behind RequireAuth.
type UserHandler struct {
	ledger core.CreditLedger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(ledger core.CreditLedger) *UserHandler {
	return &UserHandler{ledger: ledger}
}

// SyncUser handles POST /api/user. It creates the account on first login and afterwards keeps
// tier, email and lastUpdated in sync. Credit is never taken from the client.
func (h *UserHandler) SyncUser(c *gin.Context) {
	caller := middleware.Caller(c)
	if caller == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header is required"})
		return
	}

	var req models.SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tier and lastUpdated are required")
		return
	}
	lastUpdated, err := time.Parse(time.RFC3339, req.LastUpdated)
	if err != nil {
		badRequest(c, "lastUpdated must be an RFC 3339 timestamp")
		return
	}

	if _, _, err := h.ledger.UpsertUser(c.Request.Context(), caller.UserID, caller.Email, req.Tier, lastUpdated); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// GetCurrentUser handles GET /api/user/me. The email is the one stored by the last
// POST /api/user sync, not the one in the presented token.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	caller := middleware.Caller(c)
	if caller == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header is required"})
		return
	}

	acct, err := h.ledger.GetUser(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, UserProfileResponse{
		UID:              caller.UserID,
		Email:            acct.Email,
		Tier:             acct.Tier,
		CreditsRemaining: acct.Credit,
		LastUpdated:      acct.LastUpdated,
	})
}

// Consume handles POST /api/consume. An empty body consumes one credit.
func (h *UserHandler) Consume(c *gin.Context) {
	caller := middleware.Caller(c)
	if caller == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header is required"})
		return
	}

	var req models.ConsumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "amount must be a number")
			return
		}
	}

	left, err := h.ledger.Consume(c.Request.Context(), caller.UserID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConsumeResponse{CreditsRemaining: left})
}
