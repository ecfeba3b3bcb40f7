package changefeed

import (
	"SynapseCode/backend/go/internal/models"
	"sync"
	"time"
)

// Subscription is one subscriber's view of a topic. Events are read from
// Events(); the channel is closed when the subscription ends, after which Err
// tells why (nil for a normal Close).
type Subscription struct {
	hub      *Hub
	topic    string
	kinds    map[models.EntityKind]bool
	maxQueue int
	limit    int // maxQueue plus the snapshot size, so large workspaces can subscribe

	mu      sync.Mutex
	ready   bool
	pending []models.ChangeEvent // live events that arrived while the snapshot was read
	queue   []models.ChangeEvent
	inHand  bool             // pump has taken an event off queue and is waiting to hand it over
	seen    map[string]int64 // entity key -> highest revision delivered
	closed  bool
	err     error

	notify    chan struct{}
	out       chan models.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(h *Hub, topic string, kinds []models.EntityKind, maxQueue int) *Subscription {
	s := &Subscription{
		hub:      h,
		topic:    topic,
		maxQueue: maxQueue,
		limit:    maxQueue,
		seen:     make(map[string]int64),
		notify:   make(chan struct{}, 1),
		out:      make(chan models.ChangeEvent),
		done:     make(chan struct{}),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[models.EntityKind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	return s
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.out
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns ErrSlowConsumer if the hub dropped the subscriber, nil otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pending returns the number of events queued but not yet read, including
// the one pump is currently handing over.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if s.inHand {
		n++
	}
	return n
}

// Close ends the subscription. It is safe to call more than once and after
// the context passed to Subscribe is done.
func (s *Subscription) Close() {
	if s.terminate(nil) {
		s.hub.remove(s)
	}
}

func (s *Subscription) terminate(err error) bool {
	first := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.err = err
		s.queue = nil
		s.inHand = false
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
		first = true
	})
	return first
}

func (s *Subscription) wants(kind models.EntityKind) bool {
	return s.kinds == nil || s.kinds[kind]
}

// loadSnapshot queues the snapshot, the synced marker and whatever arrived meanwhile.
func (s *Subscription) loadSnapshot(events []models.ChangeEvent, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, ev := range events {
		if !s.wants(ev.Kind) {
			continue
		}
		ev.Op = models.OpCreated
		ev.Snapshot = true
		ev.Topic = s.topic
		if ev.At.IsZero() {
			ev.At = now
		}
		if ev.Revision <= s.seen[ev.EntityKey()] {
			continue
		}
		s.seen[ev.EntityKey()] = ev.Revision
		s.queue = append(s.queue, ev)
	}
	s.queue = append(s.queue, models.ChangeEvent{Topic: s.topic, Op: models.OpSynced, At: now})
	s.limit = s.maxQueue + len(s.queue)
	for _, ev := range s.pending {
		s.enqueueLocked(ev)
	}
	s.pending = nil
	s.ready = true
	s.signal()
	return true
}

// offer is called by the hub with the topic lock held. It returns false when
// the subscriber has to be dropped.
func (s *Subscription) offer(ev models.ChangeEvent) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if !s.wants(ev.Kind) {
		s.mu.Unlock()
		return true
	}
	if !s.ready {
		s.pending = append(s.pending, ev)
		over := len(s.pending) > s.maxQueue
		s.mu.Unlock()
		if over {
			s.terminate(ErrSlowConsumer)
			return false
		}
		return true
	}
	s.enqueueLocked(ev)
	over := len(s.queue) > s.limit
	s.signal()
	s.mu.Unlock()
	if over {
		s.terminate(ErrSlowConsumer)
		return false
	}
	return true
}

// enqueueLocked applies the per-entity revision filter. The first event seen
// for an entity is always delivered as "created", and a delete of an entity
// this subscriber never saw is only remembered, so a client never observes an
// update or delete before the create.
func (s *Subscription) enqueueLocked(ev models.ChangeEvent) {
	if ev.Revision > 0 {
		key := ev.EntityKey()
		last, known := s.seen[key]
		if ev.Revision <= last {
			return
		}
		s.seen[key] = ev.Revision
		if !known {
			switch ev.Op {
			case models.OpUpdated:
				ev.Op = models.OpCreated
			case models.OpDeleted:
				return
			}
		}
	}
	s.queue = append(s.queue, ev)
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump moves queued events to the unbuffered out channel.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = models.ChangeEvent{}
		s.queue = s.queue[1:]
		if len(s.queue) == 0 {
			s.queue = nil
		}
		s.inHand = true
		s.mu.Unlock()

		select {
		case s.out <- ev:
			s.mu.Lock()
			s.inHand = false
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
