package service

import (
	"SynapseCode/backend/go/internal/executor"
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"
	"strings"
)

// DocumentFile asks the assistant for documentation comments and appends them
// to the end of the file.
func (s *Service) DocumentFile(ctx context.Context, caller Caller, workspaceID, fileID string) (*models.File, error) {
	if s.opts.Assistant == nil {
		return nil, fmt.Errorf("assistant not configured: %w", models.ErrUpstreamUnavailable)
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, workspaceID, fileID)
	if err != nil {
		return nil, err
	}
	docs, err := s.opts.Assistant.Document(ctx, f.Content, f.Language)
	if err != nil {
		return nil, err
	}
	if docs == "" {
		return f, nil
	}
	content := strings.TrimRight(f.Content, "\n") + "\n\n" + docs + "\n"
	return s.UpdateFileContent(ctx, caller, workspaceID, fileID, content, "")
}

// FixFile replaces the file content with the assistant's syntax fix.
func (s *Service) FixFile(ctx context.Context, caller Caller, workspaceID, fileID string) (*models.File, error) {
	if s.opts.Assistant == nil {
		return nil, fmt.Errorf("assistant not configured: %w", models.ErrUpstreamUnavailable)
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, workspaceID, fileID)
	if err != nil {
		return nil, err
	}
	fixed, err := s.opts.Assistant.FixSyntax(ctx, f.Content)
	if err != nil {
		return nil, err
	}
	if fixed == "" || fixed == f.Content {
		return f, nil
	}
	return s.UpdateFileContent(ctx, caller, workspaceID, fileID, fixed, "")
}

// ExecuteFile runs the stored file on the code execution service.
// Anyone who can read the workspace may run its files.
func (s *Service) ExecuteFile(ctx context.Context, caller Caller, workspaceID, fileID, stdin string) (*models.ExecutionResult, error) {
	if s.opts.Executor == nil {
		return nil, fmt.Errorf("executor not configured: %w", models.ErrUpstreamUnavailable)
	}
	if _, _, err := s.requireRead(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, workspaceID, fileID)
	if err != nil {
		return nil, err
	}
	langID, ok := executor.LanguageID(f.Language)
	if !ok {
		return nil, fmt.Errorf("language %q cannot be executed: %w", f.Language, models.ErrInvalidInput)
	}
	return s.opts.Executor.Execute(ctx, models.ExecutionRequest{
		LanguageID: langID,
		SourceCode: f.Content,
		Stdin:      stdin,
	})
}
