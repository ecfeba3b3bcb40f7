package service

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/workspace_service/store"
	"context"
	"fmt"
)

func emptyToNil(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// CreateFolder creates a folder under parentID (nil for the top level).
func (s *Service) CreateFolder(ctx context.Context, caller Caller, workspaceID, name string, parentID *string, token string) (*models.Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	return idempotent(s, caller, "createFolder:"+workspaceID, token, func() (*models.Folder, error) {
		f := &models.Folder{
			WorkspaceID: workspaceID,
			Name:        name,
			ParentID:    emptyToNil(parentID),
			CreatedBy:   caller.UserID,
		}
		if err := s.store.CreateFolder(ctx, f); err != nil {
			return nil, err
		}
		s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFolder, models.OpCreated, f.ID, f.Revision, f)
		return f, nil
	})
}

// RenameFolder renames a folder. Concurrent renames resolve to the highest revision.
func (s *Service) RenameFolder(ctx context.Context, caller Caller, workspaceID, folderID, name string) (*models.Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.RenameFolder(ctx, workspaceID, folderID, name)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFolder, models.OpUpdated, f.ID, f.Revision, f)
	return f, nil
}

// MoveFolder re-parents a folder; moving it into itself or a descendant fails with ErrInvalidMove.
func (s *Service) MoveFolder(ctx context.Context, caller Caller, workspaceID, folderID string, newParentID *string) (*models.Folder, error) {
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.MoveFolder(ctx, workspaceID, folderID, emptyToNil(newParentID))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFolder, models.OpUpdated, f.ID, f.Revision, f)
	return f, nil
}

// DeleteFolder deletes a folder with all descendant folders and files.
func (s *Service) DeleteFolder(ctx context.Context, caller Caller, workspaceID, folderID string) (*models.CascadeResult, error) {
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	res, err := s.store.DeleteFolder(ctx, workspaceID, folderID)
	if err != nil {
		return nil, err
	}
	s.emitCascade(ctx, workspaceID, res)
	return res, nil
}

// CreateFile creates a file in folderID (nil for the top level).
func (s *Service) CreateFile(ctx context.Context, caller Caller, workspaceID, name string, folderID *string, language, token string) (*models.File, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	return idempotent(s, caller, "createFile:"+workspaceID, token, func() (*models.File, error) {
		f := &models.File{
			WorkspaceID: workspaceID,
			Name:        name,
			FolderID:    emptyToNil(folderID),
			Language:    language,
			CreatedBy:   caller.UserID,
		}
		if err := s.store.CreateFile(ctx, f); err != nil {
			return nil, err
		}
		s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFile, models.OpCreated, f.ID, f.Revision, f)
		return f, nil
	})
}

// GetFile returns a file the caller can read.
func (s *Service) GetFile(ctx context.Context, caller Caller, workspaceID, fileID string) (*models.File, error) {
	if _, _, err := s.requireRead(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	return s.store.GetFile(ctx, workspaceID, fileID)
}

// RenameFile renames a file. Concurrent renames resolve to the highest revision.
func (s *Service) RenameFile(ctx context.Context, caller Caller, workspaceID, fileID, name string) (*models.File, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.RenameFile(ctx, workspaceID, fileID, name)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFile, models.OpUpdated, f.ID, f.Revision, f)
	return f, nil
}

// MoveFile moves a file to another folder (nil for the top level).
func (s *Service) MoveFile(ctx context.Context, caller Caller, workspaceID, fileID string, newFolderID *string) (*models.File, error) {
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.MoveFile(ctx, workspaceID, fileID, emptyToNil(newFolderID))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFile, models.OpUpdated, f.ID, f.Revision, f)
	return f, nil
}

// UpdateFileContent replaces the whole content of a file (last writer wins).
// An empty language keeps the current one.
func (s *Service) UpdateFileContent(ctx context.Context, caller Caller, workspaceID, fileID, content, language string) (*models.File, error) {
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.UpdateFileContent(ctx, workspaceID, fileID, content, language)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFile, models.OpUpdated, f.ID, f.Revision, f)
	return f, nil
}

// DeleteFile deletes a single file.
func (s *Service) DeleteFile(ctx context.Context, caller Caller, workspaceID, fileID string) (*models.File, error) {
	if _, err := s.requireWrite(ctx, caller, workspaceID); err != nil {
		return nil, err
	}
	f, err := s.store.DeleteFile(ctx, workspaceID, fileID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.WorkspaceTopic(workspaceID), models.KindFile, models.OpDeleted, f.ID, f.Revision, f)
	return f, nil
}

// ResolvePath returns the slash separated path of a file, e.g. "lib/main".
func (s *Service) ResolvePath(ctx context.Context, caller Caller, workspaceID, fileID string) (string, error) {
	if _, _, err := s.requireRead(ctx, caller, workspaceID); err != nil {
		return "", err
	}
	file, err := s.store.GetFile(ctx, workspaceID, fileID)
	if err != nil {
		return "", err
	}
	folders, err := s.store.ListFolders(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("list folders: %w", err)
	}
	return store.FilePath(folders, file), nil
}
