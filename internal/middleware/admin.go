package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

const adminSecretHeader = "X-Admin-Secret"

// AdminSecret guards maintenance routes with a shared secret header. An empty secret disables
// the routes entirely.
func AdminSecret(secret string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("ADMIN_SECRET is not set; admin routes will reject every call")
	}
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(adminSecretHeader))
		if secret == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			logger.Warn("Admin secret mismatch", zap.String("path", c.FullPath()), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "Forbidden"})
			return
		}
		c.Next()
	}
}
