package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MemoryStore keeps all data in process memory. Each workspace is a shard with
// its own mutex. Lock order is: shards map, then one shard, then invites.
type MemoryStore struct {
	mu     sync.RWMutex
	shards map[string]*shard

	inviteMu sync.Mutex
	invites  map[string]map[string]*models.Invite // target user -> workspace -> invite

	revision atomic.Int64
	now      func() time.Time
}

type shard struct {
	mu       sync.Mutex
	ws       *models.Workspace
	members  map[string]*models.Member
	folders  map[string]*models.Folder
	files    map[string]*models.File
	messages []*models.ChatMessage
	deleted  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shards:  make(map[string]*shard),
		invites: make(map[string]map[string]*models.Invite),
		now:     time.Now,
	}
}

func (s *MemoryStore) nextRevision() int64 {
	return s.revision.Add(1)
}

// withShard runs fn with the workspace shard locked.
func (s *MemoryStore) withShard(ctx context.Context, workspaceID string, fn func(sh *shard) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	sh, ok := s.shards[workspaceID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("workspace %s: %w", workspaceID, models.ErrNotFound)
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.deleted {
		return fmt.Errorf("workspace %s: %w", workspaceID, models.ErrNotFound)
	}
	return fn(sh)
}

func (sh *shard) folderList() []*models.Folder {
	out := make([]*models.Folder, 0, len(sh.folders))
	for _, f := range sh.folders {
		out = append(out, f)
	}
	return out
}

func (sh *shard) folder(id string) (*models.Folder, error) {
	f, ok := sh.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, models.ErrNotFound)
	}
	return f, nil
}

func (sh *shard) file(id string) (*models.File, error) {
	f, ok := sh.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	return f, nil
}

// CreateWorkspace stores the workspace and its owner.
func (s *MemoryStore) CreateWorkspace(ctx context.Context, ws *models.Workspace, owner *models.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	now := s.now()
	ws.OwnerID = owner.UserID
	ws.CreatedAt, ws.UpdatedAt = now, now
	ws.Revision = s.nextRevision()
	owner.WorkspaceID = ws.ID
	owner.Role = models.RoleOwner
	owner.JoinedAt = now
	owner.Revision = s.nextRevision()

	sh := &shard{
		ws:      clone(ws),
		members: map[string]*models.Member{owner.UserID: clone(owner)},
		folders: make(map[string]*models.Folder),
		files:   make(map[string]*models.File),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shards[ws.ID]; exists {
		return fmt.Errorf("workspace %s: %w", ws.ID, models.ErrConflict)
	}
	s.shards[ws.ID] = sh
	return nil
}

// GetWorkspace returns a workspace by id.
func (s *MemoryStore) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	var out *models.Workspace
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		out = clone(sh.ws)
		return nil
	})
	return out, err
}

// ListWorkspacesForUser returns the user's workspaces, newest first.
func (s *MemoryStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.WorkspaceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	shards := make([]*shard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	var out []*models.WorkspaceSummary
	for _, sh := range shards {
		sh.mu.Lock()
		if m, ok := sh.members[userID]; ok && !sh.deleted {
			out = append(out, &models.WorkspaceSummary{Workspace: *sh.ws, Role: m.Role})
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteWorkspace removes the shard and every pending invite that points at it.
func (s *MemoryStore) DeleteWorkspace(ctx context.Context, workspaceID string) (*models.CascadeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	sh, ok := s.shards[workspaceID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, models.ErrNotFound)
	}
	delete(s.shards, workspaceID)
	sh.mu.Lock()
	s.mu.Unlock()
	defer sh.mu.Unlock()

	rev := s.nextRevision()
	sh.deleted = true
	res := &models.CascadeResult{Revision: rev}
	for _, f := range sh.folders {
		res.Folders = append(res.Folders, tombstone(f, rev))
	}
	for _, f := range sh.files {
		res.Files = append(res.Files, tombstone(f, rev))
	}
	for _, m := range sh.members {
		res.Members = append(res.Members, tombstone(m, rev))
	}
	for _, m := range sh.messages {
		res.Messages = append(res.Messages, tombstone(m, rev))
	}
	sortFolders(res.Folders)
	sortFiles(res.Files)
	sortMembers(res.Members)

	s.inviteMu.Lock()
	for user, byWS := range s.invites {
		if inv, ok := byWS[workspaceID]; ok {
			res.Invites = append(res.Invites, tombstone(inv, rev))
			delete(byWS, workspaceID)
			if len(byWS) == 0 {
				delete(s.invites, user)
			}
		}
	}
	s.inviteMu.Unlock()
	return res, nil
}

// Snapshot copies the full workspace state under the shard lock.
func (s *MemoryStore) Snapshot(ctx context.Context, workspaceID string, messageLimit int) (*models.WorkspaceSnapshot, error) {
	var snap *models.WorkspaceSnapshot
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		snap = &models.WorkspaceSnapshot{Workspace: clone(sh.ws)}
		for _, m := range sh.members {
			snap.Members = append(snap.Members, clone(m))
		}
		for _, f := range sh.folders {
			snap.Folders = append(snap.Folders, clone(f))
		}
		for _, f := range sh.files {
			snap.Files = append(snap.Files, clone(f))
		}
		snap.Messages = lastMessages(sh.messages, messageLimit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMembers(snap.Members)
	sortFolders(snap.Folders)
	sortFiles(snap.Files)
	return snap, nil
}

// AddMember adds a member; duplicates are rejected.
func (s *MemoryStore) AddMember(ctx context.Context, m *models.Member) error {
	return s.withShard(ctx, m.WorkspaceID, func(sh *shard) error {
		if _, ok := sh.members[m.UserID]; ok {
			return fmt.Errorf("member %s: %w", m.UserID, models.ErrConflict)
		}
		if m.JoinedAt.IsZero() {
			m.JoinedAt = s.now()
		}
		m.Revision = s.nextRevision()
		sh.members[m.UserID] = clone(m)
		return nil
	})
}

// GetMember returns a membership record.
func (s *MemoryStore) GetMember(ctx context.Context, workspaceID, userID string) (*models.Member, error) {
	var out *models.Member
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		m, ok := sh.members[userID]
		if !ok {
			return fmt.Errorf("member %s: %w", userID, models.ErrNotFound)
		}
		out = clone(m)
		return nil
	})
	return out, err
}

// ListMembers returns members ordered by join time.
func (s *MemoryStore) ListMembers(ctx context.Context, workspaceID string) ([]*models.Member, error) {
	var out []*models.Member
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		for _, m := range sh.members {
			out = append(out, clone(m))
		}
		return nil
	})
	sortMembers(out)
	return out, err
}

// RemoveMember deletes a membership record.
func (s *MemoryStore) RemoveMember(ctx context.Context, workspaceID, userID string) (*models.Member, error) {
	var out *models.Member
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		m, ok := sh.members[userID]
		if !ok {
			return fmt.Errorf("member %s: %w", userID, models.ErrNotFound)
		}
		delete(sh.members, userID)
		out = tombstone(m, s.nextRevision())
		return nil
	})
	return out, err
}

// CreateFolder inserts a folder under an existing parent (or at the top level).
func (s *MemoryStore) CreateFolder(ctx context.Context, f *models.Folder) error {
	return s.withShard(ctx, f.WorkspaceID, func(sh *shard) error {
		if f.ParentID != nil {
			if _, err := sh.folder(*f.ParentID); err != nil {
				return fmt.Errorf("parent %w", err)
			}
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, exists := sh.folders[f.ID]; exists {
			return fmt.Errorf("folder %s: %w", f.ID, models.ErrConflict)
		}
		now := s.now()
		f.CreatedAt, f.UpdatedAt = now, now
		f.Revision = s.nextRevision()
		sh.folders[f.ID] = clone(f)
		return nil
	})
}

// GetFolder returns a folder by id.
func (s *MemoryStore) GetFolder(ctx context.Context, workspaceID, folderID string) (*models.Folder, error) {
	var out *models.Folder
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.folder(folderID)
		out = clone(f)
		return err
	})
	return out, err
}

// ListFolders returns every folder in the workspace ordered by creation.
func (s *MemoryStore) ListFolders(ctx context.Context, workspaceID string) ([]*models.Folder, error) {
	var out []*models.Folder
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		for _, f := range sh.folders {
			out = append(out, clone(f))
		}
		return nil
	})
	sortFolders(out)
	return out, err
}

// RenameFolder renames a folder. The latest write wins.
func (s *MemoryStore) RenameFolder(ctx context.Context, workspaceID, folderID, name string) (*models.Folder, error) {
	var out *models.Folder
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.folder(folderID)
		if err != nil {
			return err
		}
		f.Name = name
		s.touch(&f.UpdatedAt, &f.Revision)
		out = clone(f)
		return nil
	})
	return out, err
}

// MoveFolder re-parents a folder after checking for cycles under the shard lock.
func (s *MemoryStore) MoveFolder(ctx context.Context, workspaceID, folderID string, newParentID *string) (*models.Folder, error) {
	var out *models.Folder
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.folder(folderID)
		if err != nil {
			return err
		}
		if newParentID != nil {
			if *newParentID == folderID {
				return fmt.Errorf("folder %s into itself: %w", folderID, models.ErrInvalidMove)
			}
			if _, err := sh.folder(*newParentID); err != nil {
				return fmt.Errorf("target %w", err)
			}
			if WouldCycle(sh.folderList(), folderID, *newParentID) {
				return fmt.Errorf("folder %s into its descendant %s: %w", folderID, *newParentID, models.ErrInvalidMove)
			}
			parent := *newParentID
			f.ParentID = &parent
		} else {
			f.ParentID = nil
		}
		s.touch(&f.UpdatedAt, &f.Revision)
		out = clone(f)
		return nil
	})
	return out, err
}

// DeleteFolder removes a folder subtree with all files in it.
// The whole cascade happens under one shard lock, so it is all-or-nothing.
func (s *MemoryStore) DeleteFolder(ctx context.Context, workspaceID, folderID string) (*models.CascadeResult, error) {
	var res *models.CascadeResult
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		if _, err := sh.folder(folderID); err != nil {
			return err
		}
		ids := Subtree(sh.folderList(), folderID)
		rev := s.nextRevision()
		res = &models.CascadeResult{Revision: rev}
		for id := range ids {
			res.Folders = append(res.Folders, tombstone(sh.folders[id], rev))
			delete(sh.folders, id)
		}
		for id, file := range sh.files {
			if file.FolderID != nil && ids[*file.FolderID] {
				res.Files = append(res.Files, tombstone(file, rev))
				delete(sh.files, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortFolders(res.Folders)
	sortFiles(res.Files)
	return res, nil
}

// CreateFile inserts a file into an existing folder (or at the top level).
func (s *MemoryStore) CreateFile(ctx context.Context, f *models.File) error {
	return s.withShard(ctx, f.WorkspaceID, func(sh *shard) error {
		if f.FolderID != nil {
			if _, err := sh.folder(*f.FolderID); err != nil {
				return fmt.Errorf("parent %w", err)
			}
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, exists := sh.files[f.ID]; exists {
			return fmt.Errorf("file %s: %w", f.ID, models.ErrConflict)
		}
		now := s.now()
		f.CreatedAt, f.UpdatedAt = now, now
		f.Revision = s.nextRevision()
		sh.files[f.ID] = clone(f)
		return nil
	})
}

// GetFile returns a file by id.
func (s *MemoryStore) GetFile(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	var out *models.File
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.file(fileID)
		out = clone(f)
		return err
	})
	return out, err
}

// ListFiles returns every file in the workspace ordered by creation.
func (s *MemoryStore) ListFiles(ctx context.Context, workspaceID string) ([]*models.File, error) {
	var out []*models.File
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		for _, f := range sh.files {
			out = append(out, clone(f))
		}
		return nil
	})
	sortFiles(out)
	return out, err
}

// RenameFile renames a file. The latest write wins.
func (s *MemoryStore) RenameFile(ctx context.Context, workspaceID, fileID, name string) (*models.File, error) {
	return s.updateFile(ctx, workspaceID, fileID, func(sh *shard, f *models.File) error {
		f.Name = name
		return nil
	})
}

// MoveFile moves a file into another folder of the same workspace.
func (s *MemoryStore) MoveFile(ctx context.Context, workspaceID, fileID string, newFolderID *string) (*models.File, error) {
	return s.updateFile(ctx, workspaceID, fileID, func(sh *shard, f *models.File) error {
		if newFolderID == nil {
			f.FolderID = nil
			return nil
		}
		if _, err := sh.folder(*newFolderID); err != nil {
			return fmt.Errorf("target %w", err)
		}
		folder := *newFolderID
		f.FolderID = &folder
		return nil
	})
}

// UpdateFileContent replaces the file content.
func (s *MemoryStore) UpdateFileContent(ctx context.Context, workspaceID, fileID, content, language string) (*models.File, error) {
	return s.updateFile(ctx, workspaceID, fileID, func(sh *shard, f *models.File) error {
		f.Content = content
		if language != "" {
			f.Language = language
		}
		return nil
	})
}

func (s *MemoryStore) updateFile(ctx context.Context, workspaceID, fileID string, apply func(sh *shard, f *models.File) error) (*models.File, error) {
	var out *models.File
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.file(fileID)
		if err != nil {
			return err
		}
		// apply on a copy so a failed validation leaves the stored file untouched
		next := clone(f)
		if err := apply(sh, next); err != nil {
			return err
		}
		s.touch(&next.UpdatedAt, &next.Revision)
		sh.files[fileID] = next
		out = clone(next)
		return nil
	})
	return out, err
}

// DeleteFile removes a file.
func (s *MemoryStore) DeleteFile(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	var out *models.File
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		f, err := sh.file(fileID)
		if err != nil {
			return err
		}
		delete(sh.files, fileID)
		out = tombstone(f, s.nextRevision())
		return nil
	})
	return out, err
}

// CreateInvite records a pending invite for the target user.
func (s *MemoryStore) CreateInvite(ctx context.Context, inv *models.Invite) (*models.Invite, bool, error) {
	var (
		out     *models.Invite
		created bool
	)
	err := s.withShard(ctx, inv.WorkspaceID, func(sh *shard) error {
		if _, ok := sh.members[inv.TargetUserID]; ok {
			return fmt.Errorf("user %s is already a member: %w", inv.TargetUserID, models.ErrConflict)
		}
		s.inviteMu.Lock()
		defer s.inviteMu.Unlock()
		byWS := s.invites[inv.TargetUserID]
		if byWS == nil {
			byWS = make(map[string]*models.Invite)
			s.invites[inv.TargetUserID] = byWS
		}
		if existing, ok := byWS[inv.WorkspaceID]; ok {
			out = clone(existing)
			return nil
		}
		inv.WorkspaceName = sh.ws.Name
		inv.CreatedAt = s.now()
		inv.Revision = s.nextRevision()
		byWS[inv.WorkspaceID] = clone(inv)
		out, created = clone(inv), true
		return nil
	})
	return out, created, err
}

// ListInvites returns the user's pending invites, oldest first.
func (s *MemoryStore) ListInvites(ctx context.Context, userID string) ([]*models.Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.inviteMu.Lock()
	out := make([]*models.Invite, 0, len(s.invites[userID]))
	for _, inv := range s.invites[userID] {
		out = append(out, clone(inv))
	}
	s.inviteMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].WorkspaceID < out[j].WorkspaceID
	})
	return out, nil
}

// DeleteInvite removes a pending invite (decline).
func (s *MemoryStore) DeleteInvite(ctx context.Context, userID, workspaceID string) (*models.Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.inviteMu.Lock()
	defer s.inviteMu.Unlock()
	return s.takeInvite(userID, workspaceID)
}

// takeInvite must be called with inviteMu held.
func (s *MemoryStore) takeInvite(userID, workspaceID string) (*models.Invite, error) {
	inv, ok := s.invites[userID][workspaceID]
	if !ok {
		return nil, fmt.Errorf("invite for %s to %s: %w", userID, workspaceID, models.ErrNotFound)
	}
	delete(s.invites[userID], workspaceID)
	if len(s.invites[userID]) == 0 {
		delete(s.invites, userID)
	}
	return tombstone(inv, s.nextRevision()), nil
}

// AcceptInvite consumes the invite and adds a contributor under the same locks.
// If the user somehow became a member already, the invite is still consumed
// and the existing membership is returned.
func (s *MemoryStore) AcceptInvite(ctx context.Context, userID, workspaceID string, member *models.Member) (*models.Member, *models.Invite, error) {
	var (
		outMember *models.Member
		outInvite *models.Invite
	)
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		s.inviteMu.Lock()
		defer s.inviteMu.Unlock()
		inv, err := s.takeInvite(userID, workspaceID)
		if err != nil {
			return err
		}
		outInvite = inv
		if existing, ok := sh.members[userID]; ok {
			outMember = clone(existing)
			return nil
		}
		member.WorkspaceID = workspaceID
		member.UserID = userID
		member.Role = models.RoleContributor
		member.JoinedAt = s.now()
		member.Revision = s.nextRevision()
		sh.members[userID] = clone(member)
		outMember = clone(member)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outMember, outInvite, nil
}

// AppendMessage adds a chat message; ids are ULIDs so they sort by time.
func (s *MemoryStore) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	return s.withShard(ctx, m.WorkspaceID, func(sh *shard) error {
		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		m.Revision = s.nextRevision()
		sh.messages = append(sh.messages, clone(m))
		return nil
	})
}

// ListMessages returns the latest messages in chronological order.
func (s *MemoryStore) ListMessages(ctx context.Context, workspaceID string, limit int) ([]*models.ChatMessage, error) {
	var out []*models.ChatMessage
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		out = lastMessages(sh.messages, limit)
		return nil
	})
	return out, err
}

// DeleteMessages clears the whole chat history of a workspace.
func (s *MemoryStore) DeleteMessages(ctx context.Context, workspaceID string) (*models.CascadeResult, error) {
	var res *models.CascadeResult
	err := s.withShard(ctx, workspaceID, func(sh *shard) error {
		rev := s.nextRevision()
		res = &models.CascadeResult{Revision: rev}
		for _, m := range sh.messages {
			res.Messages = append(res.Messages, tombstone(m, rev))
		}
		sh.messages = nil
		return nil
	})
	return res, err
}

func (s *MemoryStore) touch(updatedAt *time.Time, revision *int64) {
	*updatedAt = s.now()
	*revision = s.nextRevision()
}

func lastMessages(messages []*models.ChatMessage, limit int) []*models.ChatMessage {
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.ChatMessage, 0, len(messages)-start)
	for _, m := range messages[start:] {
		out = append(out, clone(m))
	}
	return out
}

// tombstone returns a copy of a removed entity stamped with the deletion revision.
func tombstone[E any, P interface {
	*E
	SetRevision(int64)
}](v P, rev int64) P {
	c := *v
	p := P(&c)
	p.SetRevision(rev)
	return p
}
