package presence

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix     = "presence:ws:"
	redisWorkspacesKey = "presence:workspaces"
	redisChannel       = "presence:changes"
)

// RedisStore 把在线记录保存在 Redis 哈希中（每个工作区一个 key，字段为用户 ID），
// 并通过 pub/sub 通知其他实例，使多个网关实例能看到彼此的光标。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore 创建一个 RedisStore。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func workspaceKey(workspaceID string) string {
	return redisKeyPrefix + workspaceID
}

func (s *RedisStore) Put(ctx context.Context, rec models.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化在线记录失败: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, workspaceKey(rec.WorkspaceID), rec.UserID, data)
	pipe.SAdd(ctx, redisWorkspacesKey, rec.WorkspaceID)
	pipe.Publish(ctx, redisChannel, rec.WorkspaceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入 Redis 在线记录失败: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, workspaceID, userID string) (bool, error) {
	n, err := s.rdb.HDel(ctx, workspaceKey(workspaceID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("删除 Redis 在线记录失败: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.rdb.Publish(ctx, redisChannel, workspaceID).Err(); err != nil {
		return true, fmt.Errorf("发布在线状态变化失败: %w", err)
	}
	return true, nil
}

func (s *RedisStore) List(ctx context.Context, workspaceID string) ([]models.PresenceRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, workspaceKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 在线记录失败: %w", err)
	}
	out := make([]models.PresenceRecord, 0, len(fields))
	for _, raw := range fields {
		var rec models.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// 损坏的记录等同于不存在，等待过期清扫
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Expire(ctx context.Context, cutoff time.Time) ([]string, error) {
	workspaces, err := s.rdb.SMembers(ctx, redisWorkspacesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("读取工作区集合失败: %w", err)
	}
	var touched []string
	for _, wsID := range workspaces {
		fields, err := s.rdb.HGetAll(ctx, workspaceKey(wsID)).Result()
		if err != nil {
			return touched, fmt.Errorf("读取 Redis 在线记录失败: %w", err)
		}
		if len(fields) == 0 {
			s.rdb.SRem(ctx, redisWorkspacesKey, wsID)
			continue
		}
		var stale []string
		for userID, raw := range fields {
			var rec models.PresenceRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UpdatedAt.Before(cutoff) {
				stale = append(stale, userID)
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := s.rdb.HDel(ctx, workspaceKey(wsID), stale...).Err(); err != nil {
			return touched, fmt.Errorf("清理过期在线记录失败: %w", err)
		}
		s.rdb.Publish(ctx, redisChannel, wsID)
		touched = append(touched, wsID)
	}
	return touched, nil
}

// Watch 订阅变化频道，直到 ctx 结束。
func (s *RedisStore) Watch(ctx context.Context, onChange func(workspaceID string)) error {
	pubsub := s.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅在线状态频道失败: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			onChange(msg.Payload)
		}
	}
}
