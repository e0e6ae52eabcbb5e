package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/middleware"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// GatewayHandler serves the LLM routes.
type GatewayHandler struct {
	gatewayService core.GatewayService
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(gs core.GatewayService) *GatewayHandler {
	return &GatewayHandler{gatewayService: gs}
}

// Text returns the handler of a single-text operation.
func (h *GatewayHandler) Text(op core.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "text and language are required")
			return
		}
		// Only /translate takes a caller-chosen model and a glossary.
		if op != core.OpTranslate {
			req.Model = ""
			req.Glossary = nil
		}

		result, err := h.gatewayService.CompleteText(c.Request.Context(), middleware.Caller(c), core.TextInput{
			Operation: op,
			Text:      req.Text,
			Language:  req.Language,
			Model:     req.Model,
			Glossary:  req.Glossary,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ResultResponse{Result: result})
	}
}

// TranslateWebpage handles POST /translate_webpage.
func (h *GatewayHandler) TranslateWebpage(c *gin.Context) {
	var req models.WebpageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ids and texts must be arrays of numbers and strings, and language is required")
		return
	}

	translations, err := h.gatewayService.TranslateBatch(c.Request.Context(), middleware.Caller(c), core.BatchInput{
		IDs:      req.IDs,
		Texts:    req.Texts,
		Language: req.Language,
		Model:    req.Model,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TranslationsResponse{Translations: translations})
}
