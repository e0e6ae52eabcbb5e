package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORSMiddleware allows the configured origins. With no origins configured every origin is
// allowed, which is what the extension needs when it calls from its chrome-extension:// origin.
func CORSMiddleware(origins []string, logger *zap.Logger) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:           []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:           []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Secret", "X-Request-ID"},
		ExposeHeaders:          []string{"Content-Length", "X-Request-ID"},
		AllowBrowserExtensions: true,
		MaxAge:                 12 * time.Hour,
	}

	if len(origins) == 0 {
		if logger != nil {
			logger.Warn("CLIENT_URL is not set; allowing all CORS origins")
		}
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
