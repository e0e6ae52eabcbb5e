package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/config"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// Gin context keys set by the auth middleware.
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
)

// AuthMiddleware verifies bearer identity tokens.
type AuthMiddleware struct {
	verifier identity.Verifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. It panics if verifier is nil.
func NewAuthMiddleware(verifier identity.Verifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("AuthMiddleware requires a non-nil identity.Verifier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token with 401.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

// OptionalAuth lets requests without an Authorization header through as anonymous. A header
// that is present must still verify.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

// ForMode returns RequireAuth or OptionalAuth according to the configured AUTH_MODE.
func (m *AuthMiddleware) ForMode(mode string) gin.HandlerFunc {
	if mode == config.AuthRequired {
		return m.RequireAuth()
	}
	return m.OptionalAuth()
}

func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	token, err := identity.BearerToken(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
		return false
	}

	id, err := m.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		// Details stay in the logs.
		m.logger.Warn("Identity token rejected", zap.String("path", c.FullPath()), zap.Error(err))
		msg := "Invalid or expired authentication token"
		if errors.Is(err, identity.ErrMissingCredential) {
			msg = "Authorization header is required"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: msg})
		return false
	}

	c.Set(ContextUserID, id.UserID)
	if id.Email != "" {
		c.Set(ContextUserEmail, id.Email)
	}
	return true
}

// Caller returns the verified identity of the request, or nil for anonymous requests.
func Caller(c *gin.Context) *identity.Identity {
	uid := c.GetString(ContextUserID)
	if uid == "" {
		return nil
	}
	return &identity.Identity{UserID: uid, Email: c.GetString(ContextUserEmail)}
}
