package httpmiddleware

import (
	"SynapseCode/backend/go/pkg/auth"
	"SynapseCode/backend/go/pkg/ratelimiter"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	if uid, ok := v[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuthAcceptsHeaderAndQuery(t *testing.T) {
	r := newEngine(Auth(staticVerifier{"good": "user-1"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthCarriesIdentity(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	tok, err := tokens.IssueIdentity(auth.Identity{UserID: "user-1", DisplayName: "Alice"})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(tokens))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Identity(c).DisplayName)
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", w.Body.String())
}

func TestAuthRejectsMissingOrBadToken(t *testing.T) {
	r := newEngine(Auth(staticVerifier{"good": "user-1"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitIsPerUser(t *testing.T) {
	limiter := ratelimiter.NewKeyed(func() ratelimiter.RateLimiter {
		return ratelimiter.NewFixedWindowCounter(1, time.Hour)
	}, 0)
	r := newEngine(Auth(staticVerifier{"a": "alice", "b": "bob"}), RateLimit(limiter))

	do := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusOK, do("b"))
}

func TestRequestLoggerSetsTraceHeader(t *testing.T) {
	r := newEngine(RequestLogger("test"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(TraceHeader, "trace-9")
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-9", w.Header().Get(TraceHeader))
}
