package gateway

import (
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/presence"
	"SynapseCode/backend/go/internal/workspace_service/service"
	"SynapseCode/backend/go/pkg/httpmiddleware"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Options 配置会话网关。零值使用默认值。
type Options struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	// SendBuffer 是每个会话待发送应答帧的缓冲长度。
	SendBuffer   int
	DrainTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
	Logger       *logger.Logger
}

// Gateway 管理所有 WebSocket 会话：认证、订阅变更流和在线状态、
// 把上行的光标和修改帧转给对应的服务，并在关闭时排空会话。
type Gateway struct {
	svc      *service.Service
	hub      *changefeed.Hub
	presence *presence.Service
	opts     Options
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New 创建网关。
func New(svc *service.Service, hub *changefeed.Hub, pres *presence.Service, opts Options) *Gateway {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		svc:      svc,
		hub:      hub,
		presence: pres,
		opts:     opts,
		log:      log.WithField("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		sessions: make(map[*Session]struct{}),
	}
}

// RegisterRoutes 挂载 /ws/workspaces/:id 和 /ws/inbox。令牌可以放在 token 查询参数中。
func (g *Gateway) RegisterRoutes(r gin.IRouter, verifier httpmiddleware.TokenVerifier) {
	ws := r.Group("/ws")
	ws.Use(httpmiddleware.Auth(verifier))
	ws.GET("/workspaces/:id", g.WorkspaceHandler)
	ws.GET("/inbox", g.InboxHandler)
}

func callerFrom(c *gin.Context) service.Caller {
	id := httpmiddleware.Identity(c)
	return service.Caller{UserID: id.UserID, DisplayName: id.DisplayName, AvatarRef: id.PhotoRef}
}

// WorkspaceHandler 为一个工作区打开协作会话。私有工作区的非成员在升级前就被拒绝。
func (g *Gateway) WorkspaceHandler(c *gin.Context) {
	if g.isClosing() {
		httpmiddleware.RespondError(c, models.ErrDraining)
		return
	}
	workspaceID := c.Param("id")
	s := newSession(g, callerFrom(c), workspaceID)
	role, err := g.svc.Role(c.Request.Context(), s.caller, workspaceID)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	s.role = role
	s.advance(StateConnecting, StateAuthenticated)
	g.serve(c, s, models.WorkspaceTopic(workspaceID), nil, g.svc.SnapshotFunc(workspaceID))
}

// InboxHandler 为当前用户打开个人邀请收件箱会话。
func (g *Gateway) InboxHandler(c *gin.Context) {
	if g.isClosing() {
		httpmiddleware.RespondError(c, models.ErrDraining)
		return
	}
	s := newSession(g, callerFrom(c), "")
	s.advance(StateConnecting, StateAuthenticated)
	userID := s.caller.UserID
	g.serve(c, s, models.UserTopic(userID), []models.EntityKind{models.KindInvite}, g.svc.InviteSnapshotFunc(userID))
}

func (g *Gateway) serve(c *gin.Context, s *Session, topic string, kinds []models.EntityKind, snapshot changefeed.SnapshotFunc) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写好了错误响应
		s.log.WithErr(err).Warn("WebSocket 升级失败")
		s.cancel()
		return
	}
	s.conn = conn

	if err := s.subscribe(topic, kinds, snapshot); err != nil {
		s.log.WithErr(err).Error("建立订阅失败")
		_ = s.write(errorFrame("", err))
		s.closeWith(websocket.CloseInternalServerErr, "subscribe failed")
		s.cancel()
		_ = conn.Close()
		return
	}
	if !g.register(s) {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
		s.cancel()
		s.changes.Close()
		if s.presence != nil {
			s.presence.Close()
		}
		_ = conn.Close()
		return
	}
	s.log.WithField("role", string(s.role)).Info("会话已建立")
	defer g.wg.Done()
	s.run()
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

func (g *Gateway) register(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.sessions[s] = struct{}{}
	g.wg.Add(1)
	// 在锁内切换状态，Shutdown 看到的会话一定可以被排空
	s.advance(StateAuthenticated, StateSubscribed)
	return true
}

// remove 注销会话，并报告同一用户在同一工作区是否还有其他会话。
func (g *Gateway) remove(s *Session) (others bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, s)
	for other := range g.sessions {
		if other.workspaceID == s.workspaceID && other.caller.UserID == s.caller.UserID {
			return true
		}
	}
	return false
}

// Sessions 返回当前活跃的会话数。
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown 拒绝新会话，让所有会话进入 Draining：不再接受修改，已缓冲的帧继续发送。
// ctx 到期后仍未结束的会话被强制关闭。
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	g.log.WithField("sessions", len(sessions)).Info("网关开始排空")
	for _, s := range sessions {
		s.drain()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for s := range g.sessions {
			s.forceClose()
		}
		g.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
