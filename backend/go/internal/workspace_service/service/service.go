package service

import (
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/mailer"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/workspace_service/store"
	"SynapseCode/backend/go/pkg/logger"
	"SynapseCode/backend/go/pkg/util"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Caller is the authenticated user on whose behalf an operation runs.
type Caller struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

// Publisher receives a change event for every successful write.
type Publisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// Assistant produces AI text for chat replies, documentation and syntax fixes.
type Assistant interface {
	Chat(ctx context.Context, prompt string) (string, error)
	Document(ctx context.Context, code, language string) (string, error)
	FixSyntax(ctx context.Context, code string) (string, error)
}

// Executor runs code on the external judge.
type Executor interface {
	Execute(ctx context.Context, req models.ExecutionRequest) (*models.ExecutionResult, error)
}

// Options configures a Service. Zero values get sensible defaults.
type Options struct {
	Assistant        Assistant
	Executor         Executor
	Mailer           mailer.Sender
	IdempotencyTTL   time.Duration
	IdempotencyLimit int
	// MessageLimit caps the chat history in snapshots and listings.
	MessageLimit int
	Logger       *logger.Logger
}

// Service is the single place where workspace mutations are authorised,
// validated, persisted and announced on the change feed.
type Service struct {
	store  store.Store
	feed   Publisher
	opts   Options
	logger *logger.Logger

	idem  *util.LRUCache[string, interface{}]
	group singleflight.Group

	// background AI replies
	wg sync.WaitGroup
}

// New creates a Service.
func New(st store.Store, feed Publisher, opts Options) (*Service, error) {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	if opts.IdempotencyLimit <= 0 {
		opts.IdempotencyLimit = 10000
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 200
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	idem, err := util.NewWithConfig[string, interface{}](util.CacheConfig{
		Capacity: opts.IdempotencyLimit,
		TTL:      opts.IdempotencyTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建幂等缓存失败: %w", err)
	}
	return &Service{
		store:  st,
		feed:   feed,
		opts:   opts,
		logger: log.WithField("component", "workspace_service"),
		idem:   idem,
	}, nil
}

// Wait blocks until background work (AI chat replies) has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// access resolves the caller's role. Non-members get RoleViewer on public
// workspaces and ErrUnauthorized on private ones.
func (s *Service) access(ctx context.Context, caller Caller, workspaceID string) (*models.Workspace, models.Role, error) {
	if caller.UserID == "" {
		return nil, models.RoleViewer, models.ErrUnauthorized
	}
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, models.RoleViewer, err
	}
	m, err := s.store.GetMember(ctx, workspaceID, caller.UserID)
	switch {
	case err == nil:
		return ws, m.Role, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, models.RoleViewer, err
	case ws.Visibility == models.VisibilityPublic:
		return ws, models.RoleViewer, nil
	default:
		return nil, models.RoleViewer, fmt.Errorf("workspace %s: %w", workspaceID, models.ErrUnauthorized)
	}
}

func (s *Service) requireRead(ctx context.Context, caller Caller, workspaceID string) (*models.Workspace, models.Role, error) {
	return s.access(ctx, caller, workspaceID)
}

func (s *Service) requireWrite(ctx context.Context, caller Caller, workspaceID string) (*models.Workspace, error) {
	ws, role, err := s.access(ctx, caller, workspaceID)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, fmt.Errorf("workspace %s requires owner or contributor: %w", workspaceID, models.ErrForbidden)
	}
	return ws, nil
}

func (s *Service) requireMember(ctx context.Context, caller Caller, workspaceID string) (*models.Workspace, models.Role, error) {
	ws, role, err := s.access(ctx, caller, workspaceID)
	if err != nil {
		return nil, role, err
	}
	if role == models.RoleViewer {
		return nil, role, fmt.Errorf("workspace %s requires membership: %w", workspaceID, models.ErrForbidden)
	}
	return ws, role, nil
}

// cleanName trims a folder, file or workspace name.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is empty: %w", models.ErrInvalidName)
	}
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("name %q contains '/': %w", name, models.ErrInvalidName)
	}
	return name, nil
}

// emit announces a change. Failures are logged: the write already happened and
// subscribers recover through their next snapshot.
func (s *Service) emit(ctx context.Context, topic string, kind models.EntityKind, op models.ChangeOp, entityID string, revision int64, entity interface{}) {
	if s.feed == nil {
		return
	}
	ev, err := changefeed.NewEvent(topic, kind, op, entityID, revision, entity)
	if err == nil {
		err = s.feed.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.WithErr(err).WithPayload(map[string]interface{}{
			"topic":  topic,
			"kind":   kind,
			"entity": entityID,
		}).Error("发布变更事件失败")
	}
}

// emitCascade announces a cascade delete, files first, then folders deepest first.
func (s *Service) emitCascade(ctx context.Context, workspaceID string, res *models.CascadeResult) {
	topic := models.WorkspaceTopic(workspaceID)
	for _, f := range res.Files {
		s.emit(ctx, topic, models.KindFile, models.OpDeleted, f.ID, f.Revision, f)
	}
	for i := len(res.Folders) - 1; i >= 0; i-- {
		f := res.Folders[i]
		s.emit(ctx, topic, models.KindFolder, models.OpDeleted, f.ID, f.Revision, f)
	}
	for _, m := range res.Messages {
		s.emit(ctx, topic, models.KindChat, models.OpDeleted, m.ID, m.Revision, m)
	}
	for _, m := range res.Members {
		s.emit(ctx, topic, models.KindMember, models.OpDeleted, changefeed.MemberEntityID(m), m.Revision, m)
	}
	for _, inv := range res.Invites {
		s.emit(ctx, models.UserTopic(inv.TargetUserID), models.KindInvite, models.OpDeleted, inv.WorkspaceID, inv.Revision, inv)
	}
}

// idempotent runs fn once per (caller, op, token). Retries return the first
// successful result; concurrent duplicates wait for the in-flight call.
func idempotent[T any](s *Service, caller Caller, op, token string, fn func() (T, error)) (T, error) {
	if token == "" {
		return fn()
	}
	key := caller.UserID + "\x00" + op + "\x00" + token
	if v, ok := s.idem.Get(key); ok {
		return v.(T), nil
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if v, ok := s.idem.Get(key); ok {
			return v, nil
		}
		res, err := fn()
		if err != nil {
			return nil, err
		}
		s.idem.Put(key, res)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
