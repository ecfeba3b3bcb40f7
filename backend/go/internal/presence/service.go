package presence

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// palette 是光标颜色表，同一用户总是得到同一种颜色。
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080", "#e6beff",
}

// ColorTag 根据用户 ID 计算稳定的颜色。
func ColorTag(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Options 配置在线状态服务。
type Options struct {
	Timeout       time.Duration // 记录多久未更新即视为离线
	SweepInterval time.Duration
	QueueSize     int
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service 管理工作区内的光标和在线状态。
//
// Publish 只入队不阻塞，由后台 worker 写入存储；每次变化后，订阅者会收到该工作区
// 完整的存活记录集合。
type Service struct {
	store Store
	opts  Options
	log   *logger.Logger
	queue chan models.PresenceRecord

	mu    sync.Mutex
	subs  map[string]map[*Subscription]struct{}
	dirty map[string]bool
	kick  chan struct{}
	// 最近一次驱逐的时间，早于它的排队写入不再落库
	evicted map[string]time.Time

	// 串行化快照的计算与投递，保证订阅者看到的快照不会倒退
	refreshMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService 创建服务，调用 Start 后开始处理队列。
func NewService(store Store, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:   store,
		opts:    opts,
		log:     log.WithField("component", "presence"),
		queue:   make(chan models.PresenceRecord, opts.QueueSize),
		subs:    make(map[string]map[*Subscription]struct{}),
		dirty:   make(map[string]bool),
		kick:    make(chan struct{}, 1),
		evicted: make(map[string]time.Time),
	}
}

// Start 启动写入 worker、快照刷新、定时清扫，以及存储支持时的跨实例监听。
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(3)
	go s.writeLoop(ctx)
	go s.refreshLoop(ctx)
	go s.sweepLoop(ctx)
	if w, ok := s.store.(Watcher); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := w.Watch(ctx, s.markDirty); err != nil {
				s.log.WithErr(err).Error("监听在线状态变化失败")
			}
		}()
	}
}

// Stop 停止后台任务并关闭所有订阅。
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.mu.Lock()
	var all []*Subscription
	for _, subs := range s.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range all {
		sub.Close()
	}
}

// Publish 记录用户的光标位置。队列满时丢弃并记录日志，不会阻塞调用方。
func (s *Service) Publish(workspaceID, userID, displayName string, pos models.Position) {
	rec := models.PresenceRecord{
		WorkspaceID: workspaceID,
		UserID:      userID,
		DisplayName: displayName,
		ColorTag:    ColorTag(userID),
		Position:    pos,
		UpdatedAt:   s.opts.Now(),
	}
	select {
	case s.queue <- rec:
	default:
		s.log.WithPayload(map[string]interface{}{"workspace_id": workspaceID, "user_id": userID}).Warn("在线状态队列已满，丢弃本次更新")
	}
}

// Evict 立即移除某个用户的在线记录，通常在连接断开时调用。
func (s *Service) Evict(ctx context.Context, workspaceID, userID string) error {
	s.mu.Lock()
	s.evicted[workspaceID+"/"+userID] = s.opts.Now()
	s.mu.Unlock()
	removed, err := s.store.Remove(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if removed {
		s.markDirty(workspaceID)
	}
	return nil
}

// Snapshot 返回工作区当前的存活记录，已过期但尚未被清扫的记录会被过滤掉。
func (s *Service) Snapshot(ctx context.Context, workspaceID string) (models.PresenceSnapshot, error) {
	records, err := s.store.List(ctx, workspaceID)
	if err != nil {
		return models.PresenceSnapshot{}, err
	}
	now := s.opts.Now()
	cutoff := now.Add(-s.opts.Timeout)
	snap := models.PresenceSnapshot{
		WorkspaceID: workspaceID,
		Records:     make(map[string]models.PresenceRecord, len(records)),
		At:          now,
	}
	for _, rec := range records {
		if rec.UpdatedAt.Before(cutoff) {
			continue
		}
		snap.Records[rec.UserID] = rec
	}
	return snap, nil
}

// Subscribe 订阅工作区的在线状态。订阅者立即收到一份当前快照，之后每次变化收到最新快照；
// 来不及读取的旧快照会被新快照覆盖。
func (s *Service) Subscribe(ctx context.Context, workspaceID string) (*Subscription, error) {
	sub := &Subscription{
		svc:         s,
		workspaceID: workspaceID,
		ch:          make(chan models.PresenceSnapshot, 1),
		done:        make(chan struct{}),
	}
	s.mu.Lock()
	if s.subs[workspaceID] == nil {
		s.subs[workspaceID] = make(map[*Subscription]struct{})
	}
	s.subs[workspaceID][sub] = struct{}{}
	s.mu.Unlock()

	if err := s.refresh(ctx, workspaceID); err != nil {
		sub.Close()
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *Service) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.workspaceID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.subs, sub.workspaceID)
	}
}

func (s *Service) markDirty(workspaceID string) {
	s.mu.Lock()
	_, watched := s.subs[workspaceID]
	if watched {
		s.dirty[workspaceID] = true
	}
	s.mu.Unlock()
	if watched {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

func (s *Service) refresh(ctx context.Context, workspaceID string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	snap, err := s.Snapshot(ctx, workspaceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs[workspaceID]))
	for sub := range s.subs[workspaceID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(snap)
	}
	return nil
}

func (s *Service) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.queue:
			if s.isEvicted(rec) {
				continue
			}
			if err := s.store.Put(ctx, rec); err != nil {
				s.log.WithErr(err).WithPayload(map[string]interface{}{"workspace_id": rec.WorkspaceID, "user_id": rec.UserID}).Warn("写入在线状态失败")
				continue
			}
			s.markDirty(rec.WorkspaceID)
		}
	}
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}
		s.mu.Lock()
		dirty := s.dirty
		s.dirty = make(map[string]bool)
		s.mu.Unlock()
		for wsID := range dirty {
			if err := s.refresh(ctx, wsID); err != nil {
				s.log.WithErr(err).WithField("workspace_id", wsID).Warn("刷新在线状态快照失败")
			}
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) isEvicted(rec models.PresenceRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.evicted[rec.WorkspaceID+"/"+rec.UserID]
	return ok && !rec.UpdatedAt.After(at)
}

// sweep 清除过期记录并通知受影响工作区的订阅者。
func (s *Service) sweep(ctx context.Context) {
	cutoff := s.opts.Now().Add(-s.opts.Timeout)
	s.mu.Lock()
	for key, at := range s.evicted {
		if at.Before(cutoff) {
			delete(s.evicted, key)
		}
	}
	s.mu.Unlock()
	touched, err := s.store.Expire(ctx, cutoff)
	if err != nil {
		s.log.WithErr(err).Warn("清扫过期在线记录失败")
	}
	for _, wsID := range touched {
		s.markDirty(wsID)
	}
}

// Subscription 是某个工作区在线状态的一个订阅。
type Subscription struct {
	svc         *Service
	workspaceID string

	mu     sync.Mutex
	ch     chan models.PresenceSnapshot
	closed bool
	done   chan struct{}
}

// Updates 返回快照通道，订阅结束时通道被关闭。
func (sub *Subscription) Updates() <-chan models.PresenceSnapshot {
	return sub.ch
}

// Done 在订阅结束时关闭。
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Close 结束订阅，可重复调用。
func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	close(sub.ch)
	close(sub.done)
	sub.mu.Unlock()
	sub.svc.unsubscribe(sub)
}

// deliver 用最新快照替换尚未读取的旧快照。
func (sub *Subscription) deliver(snap models.PresenceSnapshot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- snap
}
