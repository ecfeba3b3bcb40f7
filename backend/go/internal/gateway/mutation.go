package gateway

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/workspace_service/service"
	"context"
	"fmt"
)

// applyMutation 把一帧修改请求转给工作区服务，权限校验在服务内完成。
func applyMutation(ctx context.Context, svc *service.Service, caller service.Caller, workspaceID string, m *Mutation) (interface{}, error) {
	if m == nil {
		return nil, fmt.Errorf("mutation frame without payload: %w", models.ErrInvalidInput)
	}
	switch m.Op {
	case OpCreateFolder:
		return svc.CreateFolder(ctx, caller, workspaceID, m.Name, m.ParentID, m.IdempotencyToken)
	case OpRenameFolder:
		return svc.RenameFolder(ctx, caller, workspaceID, m.TargetID, m.Name)
	case OpMoveFolder:
		return svc.MoveFolder(ctx, caller, workspaceID, m.TargetID, m.ParentID)
	case OpDeleteFolder:
		return svc.DeleteFolder(ctx, caller, workspaceID, m.TargetID)
	case OpCreateFile:
		return svc.CreateFile(ctx, caller, workspaceID, m.Name, m.FolderID, m.Language, m.IdempotencyToken)
	case OpRenameFile:
		return svc.RenameFile(ctx, caller, workspaceID, m.TargetID, m.Name)
	case OpMoveFile:
		return svc.MoveFile(ctx, caller, workspaceID, m.TargetID, m.FolderID)
	case OpUpdateContent:
		return svc.UpdateFileContent(ctx, caller, workspaceID, m.TargetID, m.Content, m.Language)
	case OpDeleteFile:
		return svc.DeleteFile(ctx, caller, workspaceID, m.TargetID)
	case OpPostMessage:
		return svc.PostMessage(ctx, caller, workspaceID, m.Text)
	default:
		return nil, fmt.Errorf("unknown mutation %q: %w", m.Op, models.ErrInvalidInput)
	}
}
