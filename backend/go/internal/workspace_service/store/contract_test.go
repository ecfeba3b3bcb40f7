package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("workspace with owner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := &models.Workspace{Name: "W", Visibility: models.VisibilityPublic}
		owner := &models.Member{UserID: "alice", DisplayName: "Alice"}
		require.NoError(t, s.CreateWorkspace(ctx, ws, owner))
		assert.NotEmpty(t, ws.ID)
		assert.Equal(t, "alice", ws.OwnerID)
		assert.Positive(t, ws.Revision)

		m, err := s.GetMember(ctx, ws.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, m.Role)

		list, err := s.ListWorkspacesForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.RoleOwner, list[0].Role)

		list, err = s.ListWorkspacesForUser(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("duplicate member rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		require.NoError(t, s.AddMember(ctx, &models.Member{WorkspaceID: ws.ID, UserID: "bob", Role: models.RoleContributor}))
		err := s.AddMember(ctx, &models.Member{WorkspaceID: ws.ID, UserID: "bob", Role: models.RoleContributor})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("move folder rejects cycles", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		a := newFolder(t, s, ws.ID, "a", nil)
		b := newFolder(t, s, ws.ID, "b", &a.ID)
		c := newFolder(t, s, ws.ID, "c", &b.ID)
		other := newFolder(t, s, ws.ID, "other", nil)

		_, err := s.MoveFolder(ctx, ws.ID, a.ID, &a.ID)
		assert.ErrorIs(t, err, models.ErrInvalidMove)
		_, err = s.MoveFolder(ctx, ws.ID, a.ID, &c.ID)
		assert.ErrorIs(t, err, models.ErrInvalidMove)
		_, err = s.MoveFolder(ctx, ws.ID, a.ID, &b.ID)
		assert.ErrorIs(t, err, models.ErrInvalidMove)

		moved, err := s.MoveFolder(ctx, ws.ID, b.ID, &other.ID)
		require.NoError(t, err)
		require.NotNil(t, moved.ParentID)
		assert.Equal(t, other.ID, *moved.ParentID)

		// after the move, a is no longer an ancestor of c
		_, err = s.MoveFolder(ctx, ws.ID, a.ID, &c.ID)
		require.NoError(t, err)

		top, err := s.MoveFolder(ctx, ws.ID, a.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, top.ParentID)

		_, err = s.MoveFolder(ctx, ws.ID, a.ID, strPtr("missing"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("cascade delete removes whole subtree", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		root := newFolder(t, s, ws.ID, "root", nil)
		keep := newFolder(t, s, ws.ID, "keep", nil)
		keepFile := newFile(t, s, ws.ID, "keep.go", &keep.ID)

		parent := root.ID
		for i := 0; i < 5; i++ {
			f := newFolder(t, s, ws.ID, fmt.Sprintf("n%d", i), &parent)
			for j := 0; j < 3; j++ {
				newFile(t, s, ws.ID, fmt.Sprintf("f%d_%d", i, j), &f.ID)
			}
			parent = f.ID
		}
		newFile(t, s, ws.ID, "top.go", &root.ID)

		res, err := s.DeleteFolder(ctx, ws.ID, root.ID)
		require.NoError(t, err)
		assert.Len(t, res.Folders, 6)
		assert.Len(t, res.Files, 16)
		for _, f := range res.Files {
			assert.Equal(t, res.Revision, f.Revision)
		}

		deleted := map[string]bool{}
		for _, f := range res.Folders {
			deleted[f.ID] = true
		}
		folders, err := s.ListFolders(ctx, ws.ID)
		require.NoError(t, err)
		for _, f := range folders {
			assert.False(t, deleted[f.ID])
			if f.ParentID != nil {
				assert.False(t, deleted[*f.ParentID])
			}
		}
		files, err := s.ListFiles(ctx, ws.ID)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, keepFile.ID, files[0].ID)

		_, err = s.DeleteFolder(ctx, ws.ID, root.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("create under missing parent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		err := s.CreateFolder(ctx, &models.Folder{WorkspaceID: ws.ID, Name: "x", ParentID: strPtr("nope")})
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = s.CreateFile(ctx, &models.File{WorkspaceID: ws.ID, Name: "x", FolderID: strPtr("nope")})
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = s.CreateFolder(ctx, &models.Folder{WorkspaceID: "missing-ws", Name: "x"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent renames keep highest revision", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		file := newFile(t, s, ws.ID, "start", nil)

		const writers = 16
		var wg sync.WaitGroup
		results := make([]*models.File, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := s.RenameFile(ctx, ws.ID, file.ID, fmt.Sprintf("name-%d", i))
				assert.NoError(t, err)
				results[i] = f
			}(i)
		}
		wg.Wait()

		final, err := s.GetFile(ctx, ws.ID, file.ID)
		require.NoError(t, err)
		var highest *models.File
		submitted := map[string]bool{}
		for i, r := range results {
			submitted[fmt.Sprintf("name-%d", i)] = true
			if r != nil && (highest == nil || r.Revision > highest.Revision) {
				highest = r
			}
		}
		assert.True(t, submitted[final.Name], "final name %q must be one of the submitted names", final.Name)
		require.NotNil(t, highest)
		assert.Equal(t, highest.Revision, final.Revision)
		assert.Equal(t, highest.Name, final.Name)
	})

	t.Run("concurrent rename and move both apply", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		target := newFolder(t, s, ws.ID, "target", nil)

		for i := 0; i < 8; i++ {
			folder := newFolder(t, s, ws.ID, fmt.Sprintf("dir-%d", i), nil)
			file := newFile(t, s, ws.ID, fmt.Sprintf("f-%d.go", i), nil)

			var wg sync.WaitGroup
			wg.Add(4)
			go func() {
				defer wg.Done()
				_, err := s.RenameFolder(ctx, ws.ID, folder.ID, "renamed")
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := s.MoveFolder(ctx, ws.ID, folder.ID, &target.ID)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := s.RenameFile(ctx, ws.ID, file.ID, "renamed.go")
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := s.MoveFile(ctx, ws.ID, file.ID, &target.ID)
				assert.NoError(t, err)
			}()
			wg.Wait()

			gotFolder, err := s.GetFolder(ctx, ws.ID, folder.ID)
			require.NoError(t, err)
			assert.Equal(t, "renamed", gotFolder.Name)
			require.NotNil(t, gotFolder.ParentID)
			assert.Equal(t, target.ID, *gotFolder.ParentID)
			assert.Greater(t, gotFolder.Revision, folder.Revision)

			gotFile, err := s.GetFile(ctx, ws.ID, file.ID)
			require.NoError(t, err)
			assert.Equal(t, "renamed.go", gotFile.Name)
			require.NotNil(t, gotFile.FolderID)
			assert.Equal(t, target.ID, *gotFile.FolderID)
			assert.Greater(t, gotFile.Revision, file.Revision)
		}
	})

	t.Run("file content is last writer wins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		file := newFile(t, s, ws.ID, "main.py", nil)

		first, err := s.UpdateFileContent(ctx, ws.ID, file.ID, "print(1)", "python")
		require.NoError(t, err)
		second, err := s.UpdateFileContent(ctx, ws.ID, file.ID, "print(2)", "")
		require.NoError(t, err)
		assert.Greater(t, second.Revision, first.Revision)
		assert.Equal(t, "python", second.Language)

		got, err := s.GetFile(ctx, ws.ID, file.ID)
		require.NoError(t, err)
		assert.Equal(t, "print(2)", got.Content)
	})

	t.Run("invite accept and decline", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")

		inv, created, err := s.CreateInvite(ctx, &models.Invite{TargetUserID: "bob", WorkspaceID: ws.ID, InvitedBy: "alice"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, ws.Name, inv.WorkspaceName)

		again, created, err := s.CreateInvite(ctx, &models.Invite{TargetUserID: "bob", WorkspaceID: ws.ID, InvitedBy: "alice"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, inv.Revision, again.Revision)

		pending, err := s.ListInvites(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, ws.ID, pending[0].WorkspaceID)

		member, consumed, err := s.AcceptInvite(ctx, "bob", ws.ID, &models.Member{DisplayName: "Bob"})
		require.NoError(t, err)
		assert.Equal(t, models.RoleContributor, member.Role)
		assert.Equal(t, ws.ID, consumed.WorkspaceID)

		pending, err = s.ListInvites(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, pending)

		_, _, err = s.AcceptInvite(ctx, "bob", ws.ID, &models.Member{})
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, _, err = s.CreateInvite(ctx, &models.Invite{TargetUserID: "bob", WorkspaceID: ws.ID})
		assert.ErrorIs(t, err, models.ErrConflict)

		_, _, err = s.CreateInvite(ctx, &models.Invite{TargetUserID: "carol", WorkspaceID: ws.ID})
		require.NoError(t, err)
		_, err = s.DeleteInvite(ctx, "carol", ws.ID)
		require.NoError(t, err)
		_, err = s.DeleteInvite(ctx, "carol", ws.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("chat append list and clear", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		for i := 0; i < 5; i++ {
			require.NoError(t, s.AppendMessage(ctx, &models.ChatMessage{WorkspaceID: ws.ID, AuthorID: "alice", Text: fmt.Sprintf("m%d", i)}))
		}
		last, err := s.ListMessages(ctx, ws.ID, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, "m3", last[0].Text)
		assert.Equal(t, "m4", last[1].Text)

		res, err := s.DeleteMessages(ctx, ws.ID)
		require.NoError(t, err)
		assert.Len(t, res.Messages, 5)
		all, err := s.ListMessages(ctx, ws.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("delete workspace cascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		f := newFolder(t, s, ws.ID, "src", nil)
		newFile(t, s, ws.ID, "main", &f.ID)
		_, _, err := s.CreateInvite(ctx, &models.Invite{TargetUserID: "bob", WorkspaceID: ws.ID})
		require.NoError(t, err)

		res, err := s.DeleteWorkspace(ctx, ws.ID)
		require.NoError(t, err)
		assert.Len(t, res.Folders, 1)
		assert.Len(t, res.Files, 1)
		assert.Len(t, res.Members, 1)
		assert.Len(t, res.Invites, 1)

		_, err = s.GetWorkspace(ctx, ws.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		pending, err := s.ListInvites(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("snapshot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ws := newWorkspace(t, s, "alice")
		f := newFolder(t, s, ws.ID, "src", nil)
		newFile(t, s, ws.ID, "main", &f.ID)

		snap, err := s.Snapshot(ctx, ws.ID, 10)
		require.NoError(t, err)
		assert.Equal(t, ws.ID, snap.Workspace.ID)
		assert.Len(t, snap.Members, 1)
		assert.Len(t, snap.Folders, 1)
		assert.Len(t, snap.Files, 1)
		assert.Equal(t, "src/main", FilePath(snap.Folders, snap.Files[0]))
	})
}

func newWorkspace(t *testing.T, s Store, owner string) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{Name: "W", Visibility: models.VisibilityPublic}
	require.NoError(t, s.CreateWorkspace(context.Background(), ws, &models.Member{UserID: owner}))
	return ws
}

func newFolder(t *testing.T, s Store, wsID, name string, parent *string) *models.Folder {
	t.Helper()
	f := &models.Folder{WorkspaceID: wsID, Name: name, ParentID: parent}
	require.NoError(t, s.CreateFolder(context.Background(), f))
	return f
}

func newFile(t *testing.T, s Store, wsID, name string, folder *string) *models.File {
	t.Helper()
	f := &models.File{WorkspaceID: wsID, Name: name, FolderID: folder}
	require.NoError(t, s.CreateFile(context.Background(), f))
	return f
}
