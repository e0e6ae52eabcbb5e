package api

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/llm"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// respondError maps a service error to its status and writes the error body. It is the only
// place where errors become HTTP statuses.
func respondError(c *gin.Context, err error) {
	var statusCode int
	var errResponse models.ErrorResponse

	var validation *core.ValidationError
	switch {
	case errors.As(err, &validation):
		statusCode = http.StatusBadRequest
		errResponse = models.ErrorResponse{Error: validation.Message}
	case errors.Is(err, core.ErrValidation):
		statusCode = http.StatusBadRequest
		errResponse = models.ErrorResponse{Error: err.Error()}
	case errors.Is(err, identity.ErrMissingCredential), errors.Is(err, identity.ErrInvalidCredential):
		statusCode = http.StatusUnauthorized
		errResponse = models.ErrorResponse{Error: "Invalid or expired authentication token"}
	case errors.Is(err, core.ErrInsufficientCredit):
		statusCode = http.StatusPaymentRequired
		errResponse = models.ErrorResponse{Error: "Insufficient credits"}
	case errors.Is(err, core.ErrForbidden):
		statusCode = http.StatusForbidden
		errResponse = models.ErrorResponse{Error: "Forbidden"}
	case errors.Is(err, core.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResponse = models.ErrorResponse{Error: "User not found"}
	case errors.Is(err, llm.ErrUpstream):
		statusCode = http.StatusInternalServerError
		errResponse = models.ErrorResponse{Error: "Translation service failed, please try again"}
	case errors.Is(err, core.ErrStorage):
		statusCode = http.StatusInternalServerError
		errResponse = models.ErrorResponse{Error: "Credit store unavailable, please try again"}
	default:
		statusCode = http.StatusInternalServerError
		errResponse = models.ErrorResponse{Error: "An unexpected internal server error occurred."}
	}

	// RequestLogger reports c.Errors.
	_ = c.Error(err)
	if statusCode >= http.StatusInternalServerError {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.CaptureException(err)
	}
	c.AbortWithStatusJSON(statusCode, errResponse)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, &core.ValidationError{Message: msg})
}
