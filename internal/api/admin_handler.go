package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
)

// AdminHandler triggers the ledger maintenance jobs from an external scheduler.
type AdminHandler struct {
	ledger core.CreditLedger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger core.CreditLedger) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

func (h *AdminHandler) RollingRefresh(c *gin.Context) {
	h.run(c, h.ledger.RollingRefresh)
}

func (h *AdminHandler) MonthlyReset(c *gin.Context) {
	h.run(c, h.ledger.MonthlyReset)
}

func (h *AdminHandler) run(c *gin.Context, job func(context.Context) (int, error)) {
	updated, err := job(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{OK: true, Updated: updated})
}
