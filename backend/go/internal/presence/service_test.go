package presence

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryStore(), Options{
		Timeout:       15 * time.Second,
		SweepInterval: time.Hour, // tests call sweep directly
		Now:           clock.Now,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc, clock
}

// waitFor reads snapshots until one satisfies ok.
func waitFor(t *testing.T, sub *Subscription, ok func(models.PresenceSnapshot) bool) models.PresenceSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-sub.Updates():
			require.True(t, open, "subscription closed")
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for presence snapshot")
		}
	}
}

func TestColorTagIsStable(t *testing.T) {
	assert.Equal(t, ColorTag("alice"), ColorTag("alice"))
	assert.Contains(t, palette, ColorTag("bob"))
}

func TestSubscribeReceivesCurrentSetImmediately(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "w1")
	require.NoError(t, err)
	defer sub.Close()
	snap := waitFor(t, sub, func(models.PresenceSnapshot) bool { return true })
	assert.Empty(t, snap.Records)

	svc.Publish("w1", "alice", "Alice", models.Position{X: 1, Y: 2})
	snap = waitFor(t, sub, func(s models.PresenceSnapshot) bool { return len(s.Records) == 1 })
	rec := snap.Records["alice"]
	assert.Equal(t, "Alice", rec.DisplayName)
	assert.Equal(t, models.Position{X: 1, Y: 2}, rec.Position)
	assert.Equal(t, ColorTag("alice"), rec.ColorTag)

	late, err := svc.Subscribe(ctx, "w1")
	require.NoError(t, err)
	defer late.Close()
	snap = waitFor(t, late, func(models.PresenceSnapshot) bool { return true })
	assert.Contains(t, snap.Records, "alice")
}

func TestLatestPositionWins(t *testing.T) {
	svc, clock := newTestService(t)
	sub, err := svc.Subscribe(context.Background(), "w1")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 20; i++ {
		clock.Advance(time.Millisecond)
		svc.Publish("w1", "alice", "Alice", models.Position{X: float64(i)})
	}
	waitFor(t, sub, func(s models.PresenceSnapshot) bool {
		return s.Records["alice"].Position.X == 19
	})
}

func TestExpiryVisibleInNextSnapshot(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, "w1")
	require.NoError(t, err)
	defer sub.Close()

	svc.Publish("w1", "alice", "Alice", models.Position{})
	waitFor(t, sub, func(s models.PresenceSnapshot) bool { return len(s.Records) == 1 })

	clock.Advance(16 * time.Second)

	// reads filter expired records before the sweep runs
	snap, err := svc.Snapshot(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, snap.Records)

	svc.sweep(ctx)
	waitFor(t, sub, func(s models.PresenceSnapshot) bool { return len(s.Records) == 0 })

	records, err := svc.store.List(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvictRemovesImmediately(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, "w1")
	require.NoError(t, err)
	defer sub.Close()

	svc.Publish("w1", "alice", "Alice", models.Position{})
	svc.Publish("w1", "bob", "Bob", models.Position{})
	waitFor(t, sub, func(s models.PresenceSnapshot) bool { return len(s.Records) == 2 })

	require.NoError(t, svc.Evict(ctx, "w1", "alice"))
	snap := waitFor(t, sub, func(s models.PresenceSnapshot) bool { return len(s.Records) == 1 })
	assert.Contains(t, snap.Records, "bob")

	// evicting twice is harmless
	require.NoError(t, svc.Evict(ctx, "w1", "alice"))
}

func TestQueuedUpdateDoesNotOutliveEviction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryStore(), Options{SweepInterval: time.Hour, Now: clock.Now})
	ctx := context.Background()

	// queued before the worker runs, evicted before it is written
	svc.Publish("w1", "alice", "Alice", models.Position{X: 1})
	require.NoError(t, svc.Evict(ctx, "w1", "alice"))
	clock.Advance(time.Second)
	svc.Publish("w1", "bob", "Bob", models.Position{X: 2})

	svc.Start(ctx)
	defer svc.Stop()
	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(ctx, "w1")
		return err == nil && len(snap.Records) == 1
	}, time.Second, time.Millisecond)
	snap, err := svc.Snapshot(ctx, "w1")
	require.NoError(t, err)
	assert.Contains(t, snap.Records, "bob")
	assert.NotContains(t, snap.Records, "alice")

	// a newer update after the eviction is accepted again
	svc.Publish("w1", "alice", "Alice", models.Position{X: 3})
	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(ctx, "w1")
		return err == nil && len(snap.Records) == 2
	}, time.Second, time.Millisecond)
}

func TestWorkspacesAreIsolated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Publish("w2", "carol", "Carol", models.Position{})
	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(ctx, "w2")
		return err == nil && len(snap.Records) == 1
	}, time.Second, time.Millisecond)

	snap, err := svc.Snapshot(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestPublishNeverBlocks(t *testing.T) {
	// not started: nothing drains the queue
	svc := NewService(NewMemoryStore(), Options{QueueSize: 2})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			svc.Publish("w1", "alice", "Alice", models.Position{X: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := svc.Subscribe(ctx, "w1")
	require.NoError(t, err)
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription still open")
	}
	sub.Close()
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.subs) == 0
	}, time.Second, time.Millisecond)
}
