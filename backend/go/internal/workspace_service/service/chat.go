package service

import (
	"SynapseCode/backend/go/internal/assistant"
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	aiAuthorName   = "CodeBot"
	aiAvatarRef    = "/ai-avatar.png"
	aiReplyTimeout = time.Minute
)

// PostMessage appends a chat message. Text containing "@question" also
// triggers an AI reply, posted asynchronously by AI_AGENT.
func (s *Service) PostMessage(ctx context.Context, caller Caller, workspaceID, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message is empty: %w", models.ErrInvalidInput)
	}
	if _, _, err := s.requireMember(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	name := caller.DisplayName
	if name == "" {
		name = caller.UserID
	}
	m := &models.ChatMessage{
		WorkspaceID: workspaceID,
		AuthorID:    caller.UserID,
		AuthorName:  name,
		AvatarRef:   caller.AvatarRef,
		Text:        text,
	}
	if err := s.appendMessage(ctx, m); err != nil {
		return nil, err
	}
	if prompt, ok := assistant.ExtractPrompt(text); ok && s.opts.Assistant != nil {
		s.replyAsync(workspaceID, prompt)
	}
	return m, nil
}

func (s *Service) appendMessage(ctx context.Context, m *models.ChatMessage) error {
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return err
	}
	s.emit(ctx, models.WorkspaceTopic(m.WorkspaceID), models.KindChat, models.OpCreated, m.ID, m.Revision, m)
	return nil
}

// replyAsync asks the assistant and posts its answer, or FallbackReply on failure.
func (s *Service) replyAsync(workspaceID, prompt string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), aiReplyTimeout)
		defer cancel()

		text, err := s.opts.Assistant.Chat(ctx, prompt)
		if err != nil {
			s.logger.WithErr(err).WithField("workspace_id", workspaceID).Warn("AI 回复失败")
			text = assistant.FallbackReply
		}
		reply := &models.ChatMessage{
			WorkspaceID: workspaceID,
			AuthorID:    models.AIAgentID,
			AuthorName:  aiAuthorName,
			AvatarRef:   aiAvatarRef,
			Text:        text,
		}
		if err := s.appendMessage(ctx, reply); err != nil {
			s.logger.WithErr(err).WithField("workspace_id", workspaceID).Error("写入 AI 回复失败")
		}
	}()
}

// ListMessages returns the latest chat messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, caller Caller, workspaceID string) ([]*models.ChatMessage, error) {
	if _, _, err := s.requireRead(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, workspaceID, s.opts.MessageLimit)
}

// ClearChat deletes the whole chat history of a workspace.
func (s *Service) ClearChat(ctx context.Context, caller Caller, workspaceID string) (*models.CascadeResult, error) {
	if _, _, err := s.requireMember(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	res, err := s.store.DeleteMessages(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.emitCascade(ctx, workspaceID, res)
	return res, nil
}
