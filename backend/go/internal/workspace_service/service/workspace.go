package service

import (
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
)

// CreateWorkspace creates a workspace owned by the caller.
func (s *Service) CreateWorkspace(ctx context.Context, caller Caller, name string, visibility models.Visibility, token string) (*models.Workspace, error) {
	if caller.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("visibility %q: %w", visibility, models.ErrInvalidInput)
	}
	return idempotent(s, caller, "createWorkspace", token, func() (*models.Workspace, error) {
		ws := &models.Workspace{Name: name, Visibility: visibility}
		owner := &models.Member{
			UserID:      caller.UserID,
			DisplayName: caller.DisplayName,
			AvatarRef:   caller.AvatarRef,
		}
		if err := s.store.CreateWorkspace(ctx, ws, owner); err != nil {
			return nil, err
		}
		topic := models.WorkspaceTopic(ws.ID)
		s.emit(ctx, topic, models.KindWorkspace, models.OpCreated, ws.ID, ws.Revision, ws)
		s.emit(ctx, topic, models.KindMember, models.OpCreated, changefeed.MemberEntityID(owner), owner.Revision, owner)
		s.logger.WithPayload(map[string]interface{}{"workspace_id": ws.ID, "user_id": caller.UserID}).Info("工作区已创建")
		return ws, nil
	})
}

// ListWorkspaces returns the caller's workspaces with the caller's role.
func (s *Service) ListWorkspaces(ctx context.Context, caller Caller) ([]*models.WorkspaceSummary, error) {
	if caller.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	return s.store.ListWorkspacesForUser(ctx, caller.UserID)
}

// Snapshot returns the full state of a workspace the caller can read, with the caller's role.
func (s *Service) Snapshot(ctx context.Context, caller Caller, workspaceID string) (*models.WorkspaceSnapshot, models.Role, error) {
	_, role, err := s.requireRead(ctx, caller, workspaceID)
	if err != nil {
		return nil, role, err
	}
	snap, err := s.store.Snapshot(ctx, workspaceID, s.opts.MessageLimit)
	if err != nil {
		return nil, role, err
	}
	return snap, role, nil
}

// SnapshotFunc returns a change-feed snapshot reader for a workspace.
func (s *Service) SnapshotFunc(workspaceID string) changefeed.SnapshotFunc {
	return func(ctx context.Context) ([]models.ChangeEvent, error) {
		snap, err := s.store.Snapshot(ctx, workspaceID, s.opts.MessageLimit)
		if err != nil {
			return nil, err
		}
		return changefeed.SnapshotEvents(snap)
	}
}

// InviteSnapshotFunc returns a change-feed snapshot reader for a user's invite inbox.
func (s *Service) InviteSnapshotFunc(userID string) changefeed.SnapshotFunc {
	return func(ctx context.Context) ([]models.ChangeEvent, error) {
		invites, err := s.store.ListInvites(ctx, userID)
		if err != nil {
			return nil, err
		}
		return changefeed.InviteEvents(userID, invites)
	}
}

// Role returns the caller's role in a workspace, failing like a read would.
func (s *Service) Role(ctx context.Context, caller Caller, workspaceID string) (models.Role, error) {
	_, role, err := s.requireRead(ctx, caller, workspaceID)
	return role, err
}

// DeleteWorkspace removes a workspace with everything in it. Owner only.
func (s *Service) DeleteWorkspace(ctx context.Context, caller Caller, workspaceID string) (*models.CascadeResult, error) {
	ws, role, err := s.access(ctx, caller, workspaceID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleOwner {
		return nil, fmt.Errorf("only the owner can delete workspace %s: %w", workspaceID, models.ErrForbidden)
	}
	res, err := s.store.DeleteWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.emitCascade(ctx, workspaceID, res)
	tomb := *ws
	tomb.Revision = res.Revision
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindWorkspace, models.OpDeleted, workspaceID, res.Revision, &tomb)
	s.logger.WithPayload(map[string]interface{}{
		"workspace_id": workspaceID,
		"folders":      len(res.Folders),
		"files":        len(res.Files),
	}).Info("工作区已删除")
	return res, nil
}

// ListMembers returns the members of a workspace the caller can read.
func (s *Service) ListMembers(ctx context.Context, caller Caller, workspaceID string) ([]*models.Member, error) {
	if _, _, err := s.requireRead(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, workspaceID)
}

// LeaveWorkspace removes the caller's membership. The owner cannot leave.
func (s *Service) LeaveWorkspace(ctx context.Context, caller Caller, workspaceID string) error {
	_, role, err := s.access(ctx, caller, workspaceID)
	if err != nil {
		return err
	}
	switch role {
	case models.RoleOwner:
		return fmt.Errorf("the owner cannot leave workspace %s: %w", workspaceID, models.ErrForbidden)
	case models.RoleViewer:
		return fmt.Errorf("not a member of workspace %s: %w", workspaceID, models.ErrNotFound)
	}
	m, err := s.store.RemoveMember(ctx, workspaceID, caller.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindMember, models.OpDeleted, changefeed.MemberEntityID(m), m.Revision, m)
	return nil
}
