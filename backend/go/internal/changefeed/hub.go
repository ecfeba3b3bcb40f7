package changefeed

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSlowConsumer ends a subscription whose queue grew past the limit.
	// The client has to subscribe again and will receive a fresh snapshot.
	ErrSlowConsumer = errors.New("changefeed: subscriber too slow")
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("changefeed: hub closed")
)

// SnapshotFunc returns the current state of a topic as "created" events.
type SnapshotFunc func(ctx context.Context) ([]models.ChangeEvent, error)

// Relay forwards locally published events to other instances.
type Relay interface {
	Forward(ctx context.Context, ev models.ChangeEvent) error
}

// Options configures a Hub.
type Options struct {
	// NodeID marks events published on this instance so the relay can skip them on the way back.
	NodeID string
	// MaxQueue is the number of undelivered events after which a subscriber is dropped.
	MaxQueue int
	Relay    Relay
	Logger   *logger.Logger
	Now      func() time.Time
}

// Hub fans change events out to subscribers of a topic.
//
// Per topic it assigns a sequence number and remembers the latest revision of
// every entity, dropping events older than what was already published. Each
// subscriber additionally filters by the revisions it has delivered, so a
// snapshot followed by buffered live events never goes backwards.
type Hub struct {
	opts   Options
	log    *logger.Logger
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

type topic struct {
	mu      sync.Mutex
	name    string
	seq     uint64
	lastRev map[string]int64
	subs    map[*Subscription]struct{}
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 4096
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		opts:   opts,
		log:    log.WithField("component", "changefeed"),
		topics: make(map[string]*topic),
	}
}

// NodeID returns the id stamped on locally published events.
func (h *Hub) NodeID() string {
	return h.opts.NodeID
}

// SetRelay installs the relay after construction (the relay usually needs the hub itself).
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.opts.Relay = r
	h.mu.Unlock()
}

// Publish delivers ev to local subscribers and forwards it to the relay.
// Relay failures are logged; local delivery has already happened.
func (h *Hub) Publish(ctx context.Context, ev models.ChangeEvent) error {
	if ev.Topic == "" {
		return errors.New("changefeed: event without topic")
	}
	if ev.Origin == "" {
		ev.Origin = h.opts.NodeID
	}
	if ev.At.IsZero() {
		ev.At = h.opts.Now()
	}
	h.dispatch(ev)

	h.mu.Lock()
	relay := h.opts.Relay
	h.mu.Unlock()
	if relay != nil && ev.Origin == h.opts.NodeID {
		if err := relay.Forward(ctx, ev); err != nil {
			h.log.WithErr(err).WithPayload(map[string]interface{}{"topic": ev.Topic, "entity": ev.EntityKey()}).Warn("转发变更事件失败")
		}
	}
	return nil
}

// Ingest delivers an event received from another instance. Own events are ignored.
func (h *Hub) Ingest(ev models.ChangeEvent) {
	if ev.Origin != "" && ev.Origin == h.opts.NodeID {
		return
	}
	h.dispatch(ev)
}

func (h *Hub) dispatch(ev models.ChangeEvent) {
	h.mu.Lock()
	t, ok := h.topics[ev.Topic]
	h.mu.Unlock()
	if !ok {
		// nobody listens; a future subscriber starts from a snapshot
		return
	}

	t.mu.Lock()
	if ev.Revision > 0 {
		key := ev.EntityKey()
		if ev.Revision <= t.lastRev[key] {
			t.mu.Unlock()
			return
		}
		t.lastRev[key] = ev.Revision
	}
	t.seq++
	ev.Seq = t.seq
	dropped := 0
	for sub := range t.subs {
		if !sub.offer(ev) {
			delete(t.subs, sub)
			dropped++
		}
	}
	t.mu.Unlock()

	if dropped > 0 {
		h.log.WithPayload(map[string]interface{}{"topic": t.name, "dropped": dropped}).Warn("订阅者过慢，已断开")
		h.dropIfIdle(t)
	}
}

// Subscribe registers a subscriber for topic. kinds restricts the entity kinds
// delivered (empty means all). The subscriber first receives the snapshot,
// then an OpSynced marker, then live events. The subscription ends when ctx is
// done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, topicName string, kinds []models.EntityKind, snapshot SnapshotFunc) (*Subscription, error) {
	sub := newSubscription(h, topicName, kinds, h.opts.MaxQueue)

	// register before reading the snapshot so nothing published in between is lost
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	t, ok := h.topics[topicName]
	if !ok {
		t = &topic{name: topicName, lastRev: make(map[string]int64), subs: make(map[*Subscription]struct{})}
		h.topics[topicName] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	h.mu.Unlock()

	var events []models.ChangeEvent
	if snapshot != nil {
		var err error
		events, err = snapshot(ctx)
		if err != nil {
			sub.Close()
			return nil, err
		}
	}
	if !sub.loadSnapshot(events, h.opts.Now()) {
		sub.Close()
		return nil, ErrSlowConsumer
	}

	go sub.pump()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscribers of a topic.
func (h *Hub) Subscribers(topicName string) int {
	h.mu.Lock()
	t, ok := h.topics[topicName]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close ends every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var subs []*Subscription
	for _, t := range h.topics {
		t.mu.Lock()
		for sub := range t.subs {
			subs = append(subs, sub)
		}
		t.mu.Unlock()
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, sub)
	if len(t.subs) == 0 {
		delete(h.topics, t.name)
	}
	t.mu.Unlock()
}

// dropIfIdle forgets a topic that has no subscribers left. Lock order is h.mu, then t.mu.
func (h *Hub) dropIfIdle(t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := h.topics[t.name]; ok && cur == t && len(t.subs) == 0 {
		delete(h.topics, t.name)
	}
}
