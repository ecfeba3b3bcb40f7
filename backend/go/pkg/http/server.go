package http

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/circuitbreaker"
	"SynapseCode/backend/go/pkg/httpmiddleware"
	"SynapseCode/backend/go/pkg/logger"
	"SynapseCode/backend/go/pkg/ratelimiter"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server 包装了标准库 http.Server 和一个 Gin 引擎，
// 根据配置自动挂载请求日志、熔断和限流中间件。
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	limiter    *ratelimiter.Keyed
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// NewServer 根据 AppConfig 创建 Server。serviceName 用于日志中的 service_name 字段。
func NewServer(cfg *config.AppConfig, serviceName string, opts ...ServerOption) (*Server, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), httpmiddleware.RequestLogger(serviceName))

	srv := &Server{
		httpServer: &http.Server{Handler: engine, ReadHeaderTimeout: 10 * time.Second},
		engine:     engine,
		log:        logger.New(serviceName, "", ""),
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := createCircuitBreaker(cfg.Middleware.CircuitBreaker, srv.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		srv.log.Info("启用熔断中间件")
		engine.Use(httpmiddleware.CircuitBreak(breaker))
	}

	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := createRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		srv.log.WithField("algorithm", cfg.Middleware.RateLimiter.Algorithm).Info("启用限流中间件")
		srv.limiter = limiter
		engine.Use(httpmiddleware.RateLimit(limiter))
	}

	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}
	return srv, nil
}

// Engine 返回底层的 Gin 引擎，用于注册路由。
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	if s.httpServer.Addr == "" {
		return fmt.Errorf("server address is not set")
	}
	if s.limiter != nil {
		go s.pruneLimiter()
	}
	s.log.WithField("address", s.httpServer.Addr).Info("HTTP 服务启动")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// RegisterOnShutdown 注册在 Shutdown 开始时执行的回调，例如关闭 WebSocket 会话。
func (s *Server) RegisterOnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

func (s *Server) pruneLimiter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if n := s.limiter.Prune(); n > 0 {
			s.log.WithField("removed", n).Debug("清理空闲限流器")
		}
	}
}

// createRateLimiter 根据配置创建按调用方隔离的限流器。
func createRateLimiter(cfg config.RateLimiterConfig) (*ratelimiter.Keyed, error) {
	var window time.Duration
	if cfg.Algorithm == "fixedWindow" {
		var err error
		window, err = time.ParseDuration(cfg.FixedWindow.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixedWindow duration: %w", err)
		}
	}
	factory, err := ratelimiter.NewFactory(cfg.Algorithm, cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity, cfg.FixedWindow.Limit, window)
	if err != nil {
		return nil, err
	}
	return ratelimiter.NewKeyed(factory, 10*time.Minute), nil
}

// createCircuitBreaker initializes a circuit breaker based on the configuration.
func createCircuitBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			if log != nil {
				log.WithPayload(map[string]interface{}{"from": from.String(), "to": to.String()}).Warn("熔断器状态变化")
			}
		}),
	), nil
}
