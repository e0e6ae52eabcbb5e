package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]identity.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	id, ok := s[token]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return id, nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/t", func(c *gin.Context) {
		caller := Caller(c)
		if caller == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, caller.UserID+"|"+caller.Email)
	})
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthMiddleware(stubVerifier{"good": {UserID: "u1", Email: "u1@example.com"}}, zap.NewNop())

	tests := []struct {
		name   string
		mw     gin.HandlerFunc
		header string
		status int
		body   string
	}{
		{"required valid", auth.RequireAuth(), "Bearer good", http.StatusOK, "u1|u1@example.com"},
		{"required lowercase scheme", auth.RequireAuth(), "bearer good", http.StatusOK, "u1|u1@example.com"},
		{"required missing", auth.RequireAuth(), "", http.StatusUnauthorized, ""},
		{"required malformed", auth.RequireAuth(), "Token good", http.StatusUnauthorized, ""},
		{"required invalid", auth.RequireAuth(), "Bearer bad", http.StatusUnauthorized, ""},
		{"optional missing", auth.OptionalAuth(), "", http.StatusOK, "anonymous"},
		{"optional valid", auth.OptionalAuth(), "Bearer good", http.StatusOK, "u1|u1@example.com"},
		{"optional invalid", auth.OptionalAuth(), "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.header != "" {
				header["Authorization"] = tt.header
			}
			w := do(newEngine(tt.mw), header)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestAuthMiddleware_ForMode(t *testing.T) {
	auth := NewAuthMiddleware(stubVerifier{}, nil)
	assert.Equal(t, http.StatusUnauthorized, do(newEngine(auth.ForMode("required")), nil).Code)
	assert.Equal(t, http.StatusOK, do(newEngine(auth.ForMode("optional")), nil).Code)
}

func TestAdminSecret(t *testing.T) {
	r := newEngine(AdminSecret("s3cret", zap.NewNop()))
	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-Admin-Secret": "s3cret"}).Code)
	assert.Equal(t, http.StatusForbidden, do(r, map[string]string{"X-Admin-Secret": "wrong"}).Code)
	assert.Equal(t, http.StatusForbidden, do(r, nil).Code)

	unset := newEngine(AdminSecret("", zap.NewNop()))
	assert.Equal(t, http.StatusForbidden, do(unset, map[string]string{"X-Admin-Secret": ""}).Code)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected_total"})
	rl := NewRateLimiter(ctx, 1, 2, rejected)
	r := newEngine(rl.Middleware())

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	w := do(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests, please slow down"}`, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(rejected))
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := do(r, nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	w = do(r, map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) {
		panic(errors.New("boom"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
}
