package gateway

import (
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/presence"
	"SynapseCode/backend/go/internal/workspace_service/service"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const flushRecheck = 5 * time.Millisecond

// State 是会话的生命周期状态。
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session 是一个客户端连接。读协程处理上行帧，写协程独占连接的写操作，
// 两个订阅共用会话的 context，断开时一起取消。
type Session struct {
	gw          *Gateway
	conn        *websocket.Conn
	caller      service.Caller
	workspaceID string // 收件箱会话为空
	role        models.Role
	log         *logger.Logger

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	changes  *changefeed.Subscription
	presence *presence.Subscription

	send       chan ServerFrame
	inflight   atomic.Int32
	draining   chan struct{}
	drainOnce  sync.Once
	readerDone chan struct{}
	closeOnce  sync.Once
}

func newSession(gw *Gateway, caller service.Caller, workspaceID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gw:          gw,
		caller:      caller,
		workspaceID: workspaceID,
		log: gw.log.WithPayload(map[string]interface{}{
			"user_id":      caller.UserID,
			"workspace_id": workspaceID,
		}),
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan ServerFrame, gw.opts.SendBuffer),
		draining:   make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State 返回会话当前状态。
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) advance(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// subscribe 打开变更流订阅，工作区会话还会打开在线状态订阅。
func (s *Session) subscribe(topic string, kinds []models.EntityKind, snapshot changefeed.SnapshotFunc) error {
	changes, err := s.gw.hub.Subscribe(s.ctx, topic, kinds, snapshot)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.changes = changes
	if s.workspaceID == "" {
		return nil
	}
	pres, err := s.gw.presence.Subscribe(s.ctx, s.workspaceID)
	if err != nil {
		changes.Close()
		return fmt.Errorf("subscribe presence: %w", err)
	}
	s.presence = pres
	return nil
}

// drain 停止接受新的修改，写协程把已缓冲的帧发完后关闭连接。
func (s *Session) drain() {
	if s.advance(StateSubscribed, StateDraining) {
		s.drainOnce.Do(func() { close(s.draining) })
	}
}

// forceClose 不再等待缓冲区，直接断开。
func (s *Session) forceClose() {
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Session) run() {
	defer s.teardown()
	go s.readLoop()
	s.writeLoop()
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer s.cancel()

	pongWait := s.gw.opts.PongWait
	s.conn.SetReadLimit(s.gw.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				s.log.WithErr(err).Debug("连接异常断开")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.enqueue(errorFrame("", fmt.Errorf("malformed frame: %v: %w", err, models.ErrInvalidInput)))
			continue
		}
		s.handle(f)
	}
}

func (s *Session) handle(f ClientFrame) {
	switch f.Type {
	case FrameCursor:
		if s.workspaceID == "" || f.Position == nil {
			s.enqueue(errorFrame(f.ID, fmt.Errorf("cursor frame needs a workspace and a position: %w", models.ErrInvalidInput)))
			return
		}
		s.gw.presence.Publish(s.workspaceID, s.caller.UserID, s.caller.DisplayName, *f.Position)
	case FrameMutation:
		if s.workspaceID == "" {
			s.enqueue(errorFrame(f.ID, fmt.Errorf("inbox sessions are read-only: %w", models.ErrInvalidInput)))
			return
		}
		s.inflight.Add(1)
		defer s.inflight.Add(-1)
		if s.State() != StateSubscribed {
			s.enqueue(errorFrame(f.ID, models.ErrDraining))
			return
		}
		result, err := applyMutation(s.ctx, s.gw.svc, s.caller, s.workspaceID, f.Mutation)
		if err != nil {
			s.enqueue(errorFrame(f.ID, err))
			return
		}
		s.enqueue(ServerFrame{Type: FrameAck, ID: f.ID, Result: result})
	default:
		s.enqueue(errorFrame(f.ID, fmt.Errorf("unknown frame type %q: %w", f.Type, models.ErrInvalidInput)))
	}
}

func (s *Session) enqueue(f ServerFrame) {
	select {
	case s.send <- f:
	case <-s.ctx.Done():
	}
}

func (s *Session) write(f ServerFrame) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.opts.WriteTimeout))
	return s.conn.WriteJSON(f)
}

func (s *Session) closeWith(code int, text string) {
	deadline := time.Now().Add(s.gw.opts.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.gw.opts.PingInterval)
	defer ticker.Stop()

	if err := s.write(ServerFrame{Type: FrameHello, Role: s.role}); err != nil {
		return
	}
	changes := s.changes.Events()
	var updates <-chan models.PresenceSnapshot
	if s.presence != nil {
		updates = s.presence.Updates()
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.draining:
			s.flush(changes)
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case ev, ok := <-changes:
			if !ok {
				s.feedEnded()
				return
			}
			if err := s.write(ServerFrame{Type: FrameChange, Event: &ev}); err != nil {
				return
			}
			if ev.Kind == models.KindWorkspace && ev.Op == models.OpDeleted {
				s.closeWith(websocket.CloseNormalClosure, "workspace deleted")
				return
			}
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := s.write(ServerFrame{Type: FramePresence, Presence: &snap}); err != nil {
				return
			}
		case f := <-s.send:
			if err := s.write(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush 在截止时间内发完已排队的应答和变更事件，包括正在执行的修改的应答。
// 变更流交出事件和更新计数之间有短暂间隔，因此定期重新检查。
func (s *Session) flush(changes <-chan models.ChangeEvent) {
	deadline := time.NewTimer(s.gw.opts.DrainTimeout)
	defer deadline.Stop()
	recheck := time.NewTicker(flushRecheck)
	defer recheck.Stop()
	for {
		if len(s.send) == 0 && s.changes.Pending() == 0 && s.inflight.Load() == 0 {
			return
		}
		select {
		case f := <-s.send:
			if s.write(f) != nil {
				return
			}
		case ev, ok := <-changes:
			if !ok || s.write(ServerFrame{Type: FrameChange, Event: &ev}) != nil {
				return
			}
		case <-recheck.C:
		case <-deadline.C:
			s.log.Warn("排空超时，强制关闭会话")
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// feedEnded 处理变更流被动结束：慢消费者需要客户端重连并重新拿快照。
func (s *Session) feedEnded() {
	err := s.changes.Err()
	if errors.Is(err, changefeed.ErrSlowConsumer) {
		_ = s.write(ServerFrame{Type: FrameError, Error: "resync", Message: err.Error()})
		s.closeWith(websocket.CloseTryAgainLater, "resubscribe required")
		return
	}
	s.closeWith(websocket.CloseGoingAway, "feed closed")
}

// teardown 依次取消订阅、关闭连接、等待读协程退出，最后立即驱逐在线记录。
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.changes.Close()
		if s.presence != nil {
			s.presence.Close()
		}
		_ = s.conn.Close()
		<-s.readerDone
		s.state.Store(int32(StateClosed))

		others := s.gw.remove(s)
		if s.workspaceID != "" && !others {
			ctx, cancel := context.WithTimeout(context.Background(), s.gw.opts.WriteTimeout)
			if err := s.gw.presence.Evict(ctx, s.workspaceID, s.caller.UserID); err != nil {
				s.log.WithErr(err).Warn("驱逐在线记录失败")
			}
			cancel()
		}
		s.log.Debug("会话已关闭")
	})
}
