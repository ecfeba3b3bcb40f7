package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const resetKeyPrefix = "synapse:reset:"

// RedisResetTokens 把重置令牌存进 Redis，过期由 Redis 负责。
type RedisResetTokens struct {
	rdb *redis.Client
}

// NewRedisResetTokens 创建基于 Redis 的令牌存储。
func NewRedisResetTokens(rdb *redis.Client) *RedisResetTokens {
	return &RedisResetTokens{rdb: rdb}
}

func (r *RedisResetTokens) Save(ctx context.Context, token, uid string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, resetKeyPrefix+token, uid, ttl).Err(); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

func (r *RedisResetTokens) Consume(ctx context.Context, token string) (string, error) {
	uid, err := r.rdb.GetDel(ctx, resetKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("reset token: %w", models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	return uid, nil
}

// MemoryResetTokens 是进程内实现，未配置 Redis 时使用。
type MemoryResetTokens struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]resetEntry
}

type resetEntry struct {
	uid     string
	expires time.Time
}

// NewMemoryResetTokens 创建进程内令牌存储，now 为 nil 时使用 time.Now。
func NewMemoryResetTokens(now func() time.Time) *MemoryResetTokens {
	if now == nil {
		now = time.Now
	}
	return &MemoryResetTokens{now: now, tokens: make(map[string]resetEntry)}
}

func (m *MemoryResetTokens) Save(ctx context.Context, token, uid string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = resetEntry{uid: uid, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryResetTokens) Consume(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tokens[token]
	delete(m.tokens, token)
	if !ok || !m.now().Before(e.expires) {
		return "", fmt.Errorf("reset token: %w", models.ErrNotFound)
	}
	return e.uid, nil
}
