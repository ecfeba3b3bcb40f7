package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
)

// Store is the durable source of truth for workspaces and everything inside them.
//
// Every write assigns a new store-wide Revision and a server UpdatedAt. Writes to
// the same entity are last-writer-wins by Revision; writes to different
// workspaces never block each other. Tree changes (create, move, delete of
// folders and files) are serialised per workspace so that a cycle check or a
// cascade always sees a consistent tree.
type Store interface {
	// CreateWorkspace stores ws together with its owner member in one step.
	CreateWorkspace(ctx context.Context, ws *models.Workspace, owner *models.Member) error
	GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error)
	// ListWorkspacesForUser returns the workspaces the user is a member of, newest first.
	ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.WorkspaceSummary, error)
	// DeleteWorkspace removes the workspace and everything that belongs to it,
	// including pending invites to it.
	DeleteWorkspace(ctx context.Context, workspaceID string) (*models.CascadeResult, error)
	// Snapshot reads the whole workspace state; messageLimit <= 0 means all messages.
	Snapshot(ctx context.Context, workspaceID string, messageLimit int) (*models.WorkspaceSnapshot, error)

	// AddMember fails with models.ErrConflict if the user is already a member.
	AddMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, workspaceID, userID string) (*models.Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]*models.Member, error)
	RemoveMember(ctx context.Context, workspaceID, userID string) (*models.Member, error)

	// CreateFolder fails with models.ErrNotFound if the parent is not in the same workspace.
	CreateFolder(ctx context.Context, f *models.Folder) error
	GetFolder(ctx context.Context, workspaceID, folderID string) (*models.Folder, error)
	ListFolders(ctx context.Context, workspaceID string) ([]*models.Folder, error)
	RenameFolder(ctx context.Context, workspaceID, folderID, name string) (*models.Folder, error)
	// MoveFolder fails with models.ErrInvalidMove if newParentID is the folder itself
	// or one of its descendants. A nil newParentID moves the folder to the top level.
	MoveFolder(ctx context.Context, workspaceID, folderID string, newParentID *string) (*models.Folder, error)
	// DeleteFolder removes the folder with all descendant folders and files, or nothing.
	DeleteFolder(ctx context.Context, workspaceID, folderID string) (*models.CascadeResult, error)

	CreateFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, workspaceID, fileID string) (*models.File, error)
	ListFiles(ctx context.Context, workspaceID string) ([]*models.File, error)
	RenameFile(ctx context.Context, workspaceID, fileID, name string) (*models.File, error)
	MoveFile(ctx context.Context, workspaceID, fileID string, newFolderID *string) (*models.File, error)
	// UpdateFileContent replaces the whole content. An empty language keeps the current one.
	UpdateFileContent(ctx context.Context, workspaceID, fileID, content, language string) (*models.File, error)
	DeleteFile(ctx context.Context, workspaceID, fileID string) (*models.File, error)

	// CreateInvite is idempotent per (target user, workspace): a second call
	// returns the pending invite and created=false.
	CreateInvite(ctx context.Context, inv *models.Invite) (stored *models.Invite, created bool, err error)
	ListInvites(ctx context.Context, userID string) ([]*models.Invite, error)
	DeleteInvite(ctx context.Context, userID, workspaceID string) (*models.Invite, error)
	// AcceptInvite consumes the invite and adds the user as a contributor in one step.
	AcceptInvite(ctx context.Context, userID, workspaceID string, member *models.Member) (*models.Member, *models.Invite, error)

	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	// ListMessages returns the most recent limit messages in chronological order.
	ListMessages(ctx context.Context, workspaceID string, limit int) ([]*models.ChatMessage, error)
	DeleteMessages(ctx context.Context, workspaceID string) (*models.CascadeResult, error)
}
