package service

import (
	"SynapseCode/backend/go/internal/assistant"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/workspace_service/store"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Caller{UserID: "alice", DisplayName: "Alice"}
	bob   = Caller{UserID: "bob", DisplayName: "Bob"}
	carol = Caller{UserID: "carol", DisplayName: "Carol"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.ChangeEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ops(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Topic == topic {
			out = append(out, string(ev.Kind)+":"+string(ev.Op))
		}
	}
	return out
}

type fakeAssistant struct {
	reply string
	err   error
}

func (a *fakeAssistant) Chat(_ context.Context, prompt string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return assistant.ReplyPrefix + a.reply + " (" + prompt + ")", nil
}

func (a *fakeAssistant) Document(_ context.Context, _, _ string) (string, error) {
	return "// adds two numbers", a.err
}

func (a *fakeAssistant) FixSyntax(_ context.Context, code string) (string, error) {
	return code + ")", a.err
}

type fakeExecutor struct {
	got models.ExecutionRequest
}

func (e *fakeExecutor) Execute(_ context.Context, req models.ExecutionRequest) (*models.ExecutionResult, error) {
	e.got = req
	return &models.ExecutionResult{Stdout: "3\n", Status: models.ExecutionStatus{ID: 3, Description: "Accepted"}}, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) SendMail(_ context.Context, to []string, _, _ string) ([]string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, to...)
	m.mu.Unlock()
	return nil, nil
}

func newTestService(t *testing.T, opts Options) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc, err := New(store.NewMemoryStore(), pub, opts)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return svc, pub
}

func createWorkspace(t *testing.T, svc *Service, owner Caller, vis models.Visibility) *models.Workspace {
	t.Helper()
	ws, err := svc.CreateWorkspace(context.Background(), owner, "W", vis, "")
	require.NoError(t, err)
	return ws
}

func TestPrivateWorkspaceHiddenFromOutsiders(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	_, _, err := svc.Snapshot(ctx, bob, ws.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.CreateFolder(ctx, bob, ws.ID, "src", nil, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, _, err = svc.Snapshot(ctx, Caller{}, ws.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestPublicWorkspaceIsReadOnlyForVisitors(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPublic)
	f, err := svc.CreateFile(ctx, alice, ws.ID, "main", nil, "go", "")
	require.NoError(t, err)

	snap, role, err := svc.Snapshot(ctx, bob, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, role)
	require.Len(t, snap.Files, 1)

	_, err = svc.RenameFile(ctx, bob, ws.ID, f.ID, "other")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = svc.UpdateFileContent(ctx, bob, ws.ID, f.ID, "package main", "")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = svc.PostMessage(ctx, bob, ws.ID, "hi")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestNamesAreTrimmedAndValidated(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	f, err := svc.CreateFolder(ctx, alice, ws.ID, "  src  ", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "src", f.Name)

	for _, name := range []string{"", "   ", "\t\n", "a/b"} {
		_, err := svc.CreateFolder(ctx, alice, ws.ID, name, nil, "")
		assert.ErrorIs(t, err, models.ErrInvalidName, "name %q", name)
	}
	_, err = svc.RenameFolder(ctx, alice, ws.ID, f.ID, " ")
	assert.ErrorIs(t, err, models.ErrInvalidName)
}

func TestCreateIsIdempotentPerToken(t *testing.T) {
	svc, pub := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := svc.CreateFile(ctx, alice, ws.ID, "main", nil, "go", "tok-1")
			if assert.NoError(t, err) {
				ids[i] = f.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	snap, _, err := svc.Snapshot(ctx, alice, ws.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)

	// a different token is a different create
	_, err = svc.CreateFile(ctx, alice, ws.ID, "main", nil, "go", "tok-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"workspace:created", "member:created", "file:created", "file:created"}, pub.ops(models.WorkspaceTopic(ws.ID)))
}

func TestTreeScenarioEndToEnd(t *testing.T) {
	svc, pub := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	src, err := svc.CreateFolder(ctx, alice, ws.ID, "src", nil, "")
	require.NoError(t, err)
	main, err := svc.CreateFile(ctx, alice, ws.ID, "main", &src.ID, "go", "")
	require.NoError(t, err)

	_, err = svc.RenameFolder(ctx, alice, ws.ID, src.ID, "lib")
	require.NoError(t, err)
	path, err := svc.ResolvePath(ctx, alice, ws.ID, main.ID)
	require.NoError(t, err)
	assert.Equal(t, "lib/main", path)

	res, err := svc.DeleteFolder(ctx, alice, ws.ID, src.ID)
	require.NoError(t, err)
	assert.Len(t, res.Folders, 1)
	assert.Len(t, res.Files, 1)

	_, err = svc.GetFile(ctx, alice, ws.ID, main.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	ops := pub.ops(models.WorkspaceTopic(ws.ID))
	assert.Equal(t, []string{
		"workspace:created", "member:created",
		"folder:created", "file:created", "folder:updated",
		"file:deleted", "folder:deleted",
	}, ops)
}

func TestMoveFolderIntoDescendantFails(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)
	a, err := svc.CreateFolder(ctx, alice, ws.ID, "a", nil, "")
	require.NoError(t, err)
	b, err := svc.CreateFolder(ctx, alice, ws.ID, "b", &a.ID, "")
	require.NoError(t, err)

	_, err = svc.MoveFolder(ctx, alice, ws.ID, a.ID, &b.ID)
	assert.ErrorIs(t, err, models.ErrInvalidMove)

	empty := ""
	moved, err := svc.MoveFolder(ctx, alice, ws.ID, b.ID, &empty)
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

func TestInviteScenarioEndToEnd(t *testing.T) {
	mail := &fakeMailer{}
	svc, pub := newTestService(t, Options{Mailer: mail})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	inv, err := svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: bob.UserID, TargetEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "W", inv.WorkspaceName)

	// second invite returns the pending one without a new event
	_, err = svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: bob.UserID})
	require.NoError(t, err)

	pending, err := svc.ListInvites(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ws.ID, pending[0].WorkspaceID)

	member, err := svc.AcceptInvite(ctx, bob, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleContributor, member.Role)

	role, err := svc.Role(ctx, bob, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleContributor, role)

	pending, err = svc.ListInvites(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: bob.UserID})
	assert.ErrorIs(t, err, models.ErrConflict)

	svc.Wait()
	assert.Equal(t, []string{"bob@example.com"}, mail.sent)
	assert.Equal(t, []string{"invite:created", "invite:deleted"}, pub.ops(models.UserTopic(bob.UserID)))
}

func TestDeclineAndSelfInvite(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	_, err := svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: alice.UserID})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Invite(ctx, bob, ws.ID, InviteRequest{TargetUserID: carol.UserID})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: carol.UserID})
	require.NoError(t, err)
	require.NoError(t, svc.DeclineInvite(ctx, carol, ws.ID))
	assert.ErrorIs(t, svc.DeclineInvite(ctx, carol, ws.ID), models.ErrNotFound)
	_, err = svc.AcceptInvite(ctx, carol, ws.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLeaveWorkspace(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPublic)
	_, err := svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: bob.UserID})
	require.NoError(t, err)
	_, err = svc.AcceptInvite(ctx, bob, ws.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.LeaveWorkspace(ctx, alice, ws.ID), models.ErrForbidden)
	require.NoError(t, svc.LeaveWorkspace(ctx, bob, ws.ID))
	assert.ErrorIs(t, svc.LeaveWorkspace(ctx, bob, ws.ID), models.ErrNotFound)

	members, err := svc.ListMembers(ctx, alice, ws.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice.UserID, members[0].UserID)
}

func TestDeleteWorkspaceOwnerOnly(t *testing.T) {
	svc, pub := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)
	_, err := svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: bob.UserID})
	require.NoError(t, err)
	_, err = svc.AcceptInvite(ctx, bob, ws.ID)
	require.NoError(t, err)
	_, err = svc.Invite(ctx, alice, ws.ID, InviteRequest{TargetUserID: carol.UserID})
	require.NoError(t, err)

	_, err = svc.DeleteWorkspace(ctx, bob, ws.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.DeleteWorkspace(ctx, alice, ws.ID)
	require.NoError(t, err)
	_, _, err = svc.Snapshot(ctx, alice, ws.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	pending, err := svc.ListInvites(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, pub.ops(models.UserTopic(carol.UserID)), "invite:deleted")
	ops := pub.ops(models.WorkspaceTopic(ws.ID))
	assert.Equal(t, "workspace:deleted", ops[len(ops)-1])
}

func TestChatMentionPostsAIReply(t *testing.T) {
	svc, _ := newTestService(t, Options{Assistant: &fakeAssistant{reply: "use a map"}})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	_, err := svc.PostMessage(ctx, alice, ws.ID, "mail me at alice@example.com")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, alice, ws.ID, "@how do I dedupe")
	require.NoError(t, err)
	svc.Wait()

	msgs, err := svc.ListMessages(ctx, alice, ws.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	reply := msgs[2]
	assert.Equal(t, models.AIAgentID, reply.AuthorID)
	assert.Equal(t, "CodeBot", reply.AuthorName)
	assert.Equal(t, assistant.ReplyPrefix+"use a map (how do I dedupe)", reply.Text)
}

func TestChatFallbackWhenAssistantFails(t *testing.T) {
	svc, _ := newTestService(t, Options{Assistant: &fakeAssistant{err: models.ErrUpstreamUnavailable}})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)

	_, err := svc.PostMessage(ctx, alice, ws.ID, "@help")
	require.NoError(t, err)
	svc.Wait()

	msgs, err := svc.ListMessages(ctx, alice, ws.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, assistant.FallbackReply, msgs[1].Text)

	res, err := svc.ClearChat(ctx, alice, ws.ID)
	require.NoError(t, err)
	assert.Len(t, res.Messages, 2)
	msgs, err = svc.ListMessages(ctx, alice, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDocumentAndFixFile(t *testing.T) {
	svc, _ := newTestService(t, Options{Assistant: &fakeAssistant{}})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)
	f, err := svc.CreateFile(ctx, alice, ws.ID, "add", nil, "javascript", "")
	require.NoError(t, err)
	_, err = svc.UpdateFileContent(ctx, alice, ws.ID, f.ID, "const add = (a, b) => a + b;\n", "")
	require.NoError(t, err)

	doc, err := svc.DocumentFile(ctx, alice, ws.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "const add = (a, b) => a + b;\n\n// adds two numbers\n", doc.Content)
	assert.Equal(t, "javascript", doc.Language)

	fixed, err := svc.FixFile(ctx, alice, ws.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content+")", fixed.Content)
	assert.Greater(t, fixed.Revision, doc.Revision)
}

func TestExecuteFile(t *testing.T) {
	exec := &fakeExecutor{}
	svc, _ := newTestService(t, Options{Executor: exec})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPublic)
	f, err := svc.CreateFile(ctx, alice, ws.ID, "main", nil, "python", "")
	require.NoError(t, err)
	_, err = svc.UpdateFileContent(ctx, alice, ws.ID, f.ID, "print(1+2)", "")
	require.NoError(t, err)

	// visitors of a public workspace may run code
	res, err := svc.ExecuteFile(ctx, bob, ws.ID, f.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "3\n", res.Stdout)
	assert.Equal(t, 71, exec.got.LanguageID)
	assert.Equal(t, "print(1+2)", exec.got.SourceCode)

	g, err := svc.CreateFile(ctx, alice, ws.ID, "notes", nil, "markdown", "")
	require.NoError(t, err)
	_, err = svc.ExecuteFile(ctx, alice, ws.ID, g.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestToolsWithoutUpstream(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)
	f, err := svc.CreateFile(ctx, alice, ws.ID, "main", nil, "go", "")
	require.NoError(t, err)

	_, err = svc.ExecuteFile(ctx, alice, ws.ID, f.ID, "")
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
	_, err = svc.DocumentFile(ctx, alice, ws.ID, f.ID)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	_, err = svc.FixFile(ctx, alice, ws.ID, f.ID)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestConcurrentRenamesKeepOneName(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	ws := createWorkspace(t, svc, alice, models.VisibilityPrivate)
	f, err := svc.CreateFolder(ctx, alice, ws.ID, "src", nil, "")
	require.NoError(t, err)

	names := []string{"a", "b", "c", "d"}
	results := make([]*models.Folder, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			r, err := svc.RenameFolder(ctx, alice, ws.ID, f.ID, name)
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i, name)
	}
	wg.Wait()

	var winner *models.Folder
	for _, r := range results {
		if r != nil && (winner == nil || r.Revision > winner.Revision) {
			winner = r
		}
	}
	require.NotNil(t, winner)
	snap, _, err := svc.Snapshot(ctx, alice, ws.ID)
	require.NoError(t, err)
	require.Len(t, snap.Folders, 1)
	assert.Equal(t, winner.Name, snap.Folders[0].Name)
}
