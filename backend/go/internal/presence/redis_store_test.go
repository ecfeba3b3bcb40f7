package presence

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实的 Redis，通过 SYNAPSE_TEST_REDIS_ADDR 指定，例如 localhost:6379。
func newTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("SYNAPSE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SYNAPSE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStorePutListExpire(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()
	wsID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		rdb.Del(ctx, workspaceKey(wsID))
		rdb.SRem(ctx, redisWorkspacesKey, wsID)
	})

	now := time.Now().UTC()
	require.NoError(t, s.Put(ctx, models.PresenceRecord{WorkspaceID: wsID, UserID: "alice", UpdatedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Put(ctx, models.PresenceRecord{WorkspaceID: wsID, UserID: "bob", UpdatedAt: now}))

	records, err := s.List(ctx, wsID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	touched, err := s.Expire(ctx, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Contains(t, touched, wsID)

	records, err = s.List(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0].UserID)

	removed, err := s.Remove(ctx, wsID, "bob")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestRedisStoreWatchSeesOtherInstance(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		rdb.Del(context.Background(), workspaceKey(wsID))
		rdb.SRem(context.Background(), redisWorkspacesKey, wsID)
	})

	seen := make(chan string, 8)
	go s.Watch(ctx, func(id string) { seen <- id })

	// 另一个实例写入
	other := NewRedisStore(rdb)
	require.Eventually(t, func() bool {
		_ = other.Put(ctx, models.PresenceRecord{WorkspaceID: wsID, UserID: "alice", UpdatedAt: time.Now()})
		select {
		case id := <-seen:
			return id == wsID
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
