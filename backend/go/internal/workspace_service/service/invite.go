package service

import (
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/mailer"
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"time"
)

// InviteRequest names the invited user. Email is optional and only used for
// the notification mail.
type InviteRequest struct {
	TargetUserID string
	TargetEmail  string
}

// Invite creates a pending invite. Inviting the same user twice returns the
// pending invite; inviting a member fails with ErrConflict.
func (s *Service) Invite(ctx context.Context, caller Caller, workspaceID string, req InviteRequest) (*models.Invite, error) {
	if req.TargetUserID == "" {
		return nil, fmt.Errorf("target user is empty: %w", models.ErrInvalidInput)
	}
	ws, err := s.requireWrite(ctx, caller, workspaceID)
	if err != nil {
		return nil, err
	}
	if req.TargetUserID == caller.UserID {
		return nil, fmt.Errorf("cannot invite yourself: %w", models.ErrInvalidInput)
	}
	if _, err := s.store.GetMember(ctx, workspaceID, req.TargetUserID); err == nil {
		return nil, fmt.Errorf("user %s is already a member: %w", req.TargetUserID, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	inviter := caller.DisplayName
	if inviter == "" {
		inviter = caller.UserID
	}
	inv, created, err := s.store.CreateInvite(ctx, &models.Invite{
		TargetUserID:  req.TargetUserID,
		WorkspaceID:   workspaceID,
		WorkspaceName: ws.Name,
		InvitedBy:     inviter,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.emit(ctx, models.UserTopic(inv.TargetUserID), models.KindInvite, models.OpCreated, inv.WorkspaceID, inv.Revision, inv)
		if req.TargetEmail != "" {
			s.notifyInvite(req.TargetEmail, inviter, ws.Name)
		}
	}
	return inv, nil
}

// notifyInvite mails the invited user in the background. Failures are only logged.
func (s *Service) notifyInvite(email, inviter, workspaceName string) {
	if s.opts.Mailer == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		html, err := mailer.InviteHTML(inviter, workspaceName)
		if err == nil {
			var rejected []string
			rejected, err = s.opts.Mailer.SendMail(ctx, []string{email}, "SynapseCode | Workspace invitation", html)
			if err == nil && len(rejected) > 0 {
				err = fmt.Errorf("rejected recipients: %v", rejected)
			}
		}
		if err != nil {
			s.logger.WithErr(err).WithField("email", email).Warn("发送邀请邮件失败")
		}
	}()
}

// ListInvites returns the caller's pending invites.
func (s *Service) ListInvites(ctx context.Context, caller Caller) ([]*models.Invite, error) {
	if caller.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	return s.store.ListInvites(ctx, caller.UserID)
}

// AcceptInvite consumes the caller's invite and makes the caller a contributor.
func (s *Service) AcceptInvite(ctx context.Context, caller Caller, workspaceID string) (*models.Member, error) {
	if caller.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	member, inv, err := s.store.AcceptInvite(ctx, caller.UserID, workspaceID, &models.Member{
		DisplayName: caller.DisplayName,
		AvatarRef:   caller.AvatarRef,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.UserTopic(caller.UserID), models.KindInvite, models.OpDeleted, inv.WorkspaceID, inv.Revision, inv)
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindMember, models.OpCreated, changefeed.MemberEntityID(member), member.Revision, member)
	return member, nil
}

// DeclineInvite drops the caller's invite.
func (s *Service) DeclineInvite(ctx context.Context, caller Caller, workspaceID string) error {
	if caller.UserID == "" {
		return models.ErrUnauthorized
	}
	inv, err := s.store.DeleteInvite(ctx, caller.UserID, workspaceID)
	if err != nil {
		return err
	}
	s.emit(ctx, models.UserTopic(caller.UserID), models.KindInvite, models.OpDeleted, inv.WorkspaceID, inv.Revision, inv)
	return nil
}
