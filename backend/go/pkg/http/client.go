package http

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/circuitbreaker"
	"fmt"
	"net/http"
	"time"
)

// Client 包装标准库 http.Client，为外部依赖（代码执行、邮件网关等）提供熔断保护。
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient 创建一个 Client。熔断未启用时仅设置超时。
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	if !cfg.Enabled {
		return c, nil
	}
	breaker, err := createCircuitBreaker(cfg, nil)
	if err != nil {
		return nil, err
	}
	c.breaker = breaker
	return c, nil
}

// Breaker 返回底层熔断器，未启用时为 nil。
func (c *Client) Breaker() circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Do executes an HTTP request with circuit breaker protection.
// It considers status codes >= 500 as failures; the response body is closed in that case.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return circuitbreaker.Do(c.breaker, func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
}
