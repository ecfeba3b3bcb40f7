package redis

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Connect 创建 Redis 客户端并用 Ping 确认连接可用。
func Connect(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("未配置 Redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}
	log.WithField("address", cfg.Address).Info("成功连接到 Redis")
	return rdb, nil
}

// HealthCheck 检查 Redis 连接的健康状况。
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
