package llm

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Generator 定义了所有生成式文本客户端必须实现的通用接口：输入提示词，返回文本。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewClient 是一个工厂函数，根据配置创建对应服务商的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini", "":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini 未配置 API Key")
		}
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// Guarded 为 Generator 加上单次调用超时和熔断。任何失败都被归类为
// models.ErrUpstreamUnavailable，且不会重试。
type Guarded struct {
	next    Generator
	breaker circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuarded 包装 next。breaker 为 nil 时只做超时控制。
func NewGuarded(next Generator, breaker circuitbreaker.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

// Generate 实现 Generator。
func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	text, err := circuitbreaker.Do(g.breaker, func() (string, error) {
		text, err := g.next.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", errors.New("模型返回了空内容")
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("生成式文本服务: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	return text, nil
}
