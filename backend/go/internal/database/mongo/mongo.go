package mongo

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// Connect 连接 MongoDB 并返回客户端和配置中的数据库。
// 工作区存储依赖多文档事务，Address 必须指向副本集。
func Connect(ctx context.Context, cfg *config.MongoConfig, log *logger.Logger) (*mongo.Client, *mongo.Database, error) {
	if cfg.Address == "" || cfg.Database == "" {
		return nil, nil, fmt.Errorf("未配置 MongoDB address 或 database")
	}
	clientOptions := options.Client().ApplyURI(cfg.Address)
	if cfg.Username != "" && cfg.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}
	if err = c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}

	log.WithField("database", cfg.Database).Info("成功连接到 MongoDB")
	return c, c.Database(cfg.Database), nil
}

// HealthCheck 检查 MongoDB 主节点是否可达。
func HealthCheck(ctx context.Context, c *mongo.Client) error {
	return c.Ping(ctx, readpref.Primary())
}
