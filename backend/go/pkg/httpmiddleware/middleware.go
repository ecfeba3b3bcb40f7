package httpmiddleware

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/pkg/auth"
	"SynapseCode/backend/go/pkg/circuitbreaker"
	"SynapseCode/backend/go/pkg/logger"
	"SynapseCode/backend/go/pkg/ratelimiter"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	userIDKey      = "userID"
	displayNameKey = "displayName"
	photoRefKey    = "photoRef"
	traceIDKey     = "traceID"
	// TraceHeader 是请求追踪 ID 的请求/响应头。
	TraceHeader = "X-Trace-Id"
)

// TokenVerifier 校验访问令牌并返回用户 ID。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// IdentityVerifier 由能从令牌中取出展示名和头像的校验器实现，例如 auth.Tokens。
type IdentityVerifier interface {
	VerifyIdentity(token string) (auth.Identity, error)
}

// UserID 返回 Auth 中间件写入上下文的用户 ID。
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// Identity 返回 Auth 中间件写入上下文的完整身份。
func Identity(c *gin.Context) auth.Identity {
	return auth.Identity{
		UserID:      c.GetString(userIDKey),
		DisplayName: c.GetString(displayNameKey),
		PhotoRef:    c.GetString(photoRefKey),
	}
}

// TraceID 返回 RequestLogger 写入上下文的追踪 ID。
func TraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

// BearerToken 从 Authorization 头 ("Bearer <token>") 或 token 查询参数中取出令牌。
// 浏览器的 WebSocket 握手无法自定义请求头，所以允许查询参数。
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// Auth 创建一个 Gin 中间件，用于验证 JWT。
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "请求未包含有效的授权信息"})
			return
		}
		if iv, ok := verifier.(IdentityVerifier); ok {
			id, err := iv.VerifyIdentity(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "无效的 token"})
				return
			}
			c.Set(userIDKey, id.UserID)
			c.Set(displayNameKey, id.DisplayName)
			c.Set(photoRefKey, id.PhotoRef)
			c.Next()
			return
		}
		userID, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "无效的 token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequestLogger 为每个请求分配追踪 ID，并在请求结束后记录一条结构化日志。
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.New(serviceName, traceID, UserID(c)).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       c.FullPath(),
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
				UserID:     UserID(c),
				Status:     status,
				LatencyMS:  time.Since(start).Milliseconds(),
			})
		switch {
		case status >= http.StatusInternalServerError:
			log.WithError(models.ErrorInfo{Message: c.Errors.String(), StatusCode: status}).Error("请求处理失败")
		case status >= http.StatusBadRequest:
			log.Warn("请求被拒绝")
		default:
			log.Debug("请求完成")
		}
	}
}

// RateLimit 按用户（未认证时按客户端 IP）限流。
func RateLimit(limiter *ratelimiter.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

// CircuitBreak 把 5xx 响应计为失败；熔断打开时直接返回 503。
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := breaker.Execute(func() (interface{}, error) {
			c.Next()
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return nil, fmt.Errorf("server error: status code %d", status)
			}
			return nil, nil
		})
		if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyProbes {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Service Unavailable: Circuit Breaker is open"})
		}
	}
}
