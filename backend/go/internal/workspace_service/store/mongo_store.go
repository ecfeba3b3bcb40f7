package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colWorkspaces = "workspaces"
	colMembers    = "workspace_members"
	colFolders    = "folders"
	colFiles      = "files"
	colInvites    = "invites"
	colMessages   = "chat_messages"
	colCounters   = "counters"

	revisionCounterID = "revision"
)

// MongoStore is a Store backed by MongoDB. Multi-document operations (cycle
// checked moves, cascades, invite acceptance) run in transactions, so the
// deployment must be a replica set.
//
// Tree writes also bump tree_version on the workspace document. Two
// transactions that change the same tree therefore always write-conflict and
// one of them is retried, which rules out write skew between a cycle check and
// a concurrent move.
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	workspaces *mongo.Collection
	members    *mongo.Collection
	folders    *mongo.Collection
	files      *mongo.Collection
	invites    *mongo.Collection
	messages   *mongo.Collection
	counters   *mongo.Collection
	now        func() time.Time
}

// NewMongoStore creates a MongoStore on the given database.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:     client,
		db:         db,
		workspaces: db.Collection(colWorkspaces),
		members:    db.Collection(colMembers),
		folders:    db.Collection(colFolders),
		files:      db.Collection(colFiles),
		invites:    db.Collection(colInvites),
		messages:   db.Collection(colMessages),
		counters:   db.Collection(colCounters),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.members: {
			{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		s.folders: {{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "parent_id", Value: 1}}}},
		s.files:   {{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "folder_id", Value: 1}}}},
		s.invites: {
			{Keys: bson.D{{Key: "target_user_id", Value: 1}, {Key: "workspace_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "workspace_id", Value: 1}}},
		},
		s.messages: {{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "_id", Value: 1}}}},
	}
	for col, idx := range specs {
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("创建索引 %s 失败: %w", col.Name(), err)
		}
	}
	return nil
}

// nextRevision allocates the next global revision. Tree transactions call it
// with their session after lockTree so the revision orders after the lock.
func (s *MongoStore) nextRevision(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": revisionCounterID}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("分配修订号失败: %w", err)
	}
	return doc.Seq, nil
}

func (s *MongoStore) withTxn(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("开启会话失败: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// lockTree bumps tree_version so that concurrent tree transactions conflict.
func (s *MongoStore) lockTree(ctx context.Context, workspaceID string) error {
	res, err := s.workspaces.UpdateOne(ctx, bson.M{"_id": workspaceID}, bson.M{"$inc": bson.M{"tree_version": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("workspace %s: %w", workspaceID, models.ErrNotFound)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

func conflict(err error, what string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", what, models.ErrConflict)
	}
	return err
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []*T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWorkspace inserts the workspace and the owner member in one transaction.
func (s *MongoStore) CreateWorkspace(ctx context.Context, ws *models.Workspace, owner *models.Member) error {
	wsRev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	memberRev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	now := s.now()
	ws.OwnerID = owner.UserID
	ws.CreatedAt, ws.UpdatedAt, ws.Revision = now, now, wsRev
	owner.WorkspaceID, owner.Role, owner.JoinedAt, owner.Revision = ws.ID, models.RoleOwner, now, memberRev

	return s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.workspaces.InsertOne(sc, ws); err != nil {
			return conflict(err, "workspace "+ws.ID)
		}
		if _, err := s.members.InsertOne(sc, owner); err != nil {
			return conflict(err, "member "+owner.UserID)
		}
		return nil
	})
}

// GetWorkspace returns a workspace by id.
func (s *MongoStore) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.workspaces.FindOne(ctx, bson.M{"_id": workspaceID}).Decode(&ws); err != nil {
		return nil, notFound(err, "workspace "+workspaceID)
	}
	return &ws, nil
}

// ListWorkspacesForUser joins the user's memberships with their workspaces.
func (s *MongoStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.WorkspaceSummary, error) {
	members, err := findAll[models.Member](ctx, s.members, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	roles := make(map[string]models.Role, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		roles[m.WorkspaceID] = m.Role
		ids = append(ids, m.WorkspaceID)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	workspaces, err := findAll[models.Workspace](ctx, s.workspaces, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*models.WorkspaceSummary, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, &models.WorkspaceSummary{Workspace: *ws, Role: roles[ws.ID]})
	}
	return out, nil
}

// DeleteWorkspace removes the workspace and all of its documents in one transaction.
func (s *MongoStore) DeleteWorkspace(ctx context.Context, workspaceID string) (*models.CascadeResult, error) {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, err
	}
	var res *models.CascadeResult
	err = s.withTxn(ctx, func(sc mongo.SessionContext) error {
		var err error
		res = &models.CascadeResult{Revision: rev}
		byWS := bson.M{"workspace_id": workspaceID}
		if res.Folders, err = findAll[models.Folder](sc, s.folders, byWS); err != nil {
			return err
		}
		if res.Files, err = findAll[models.File](sc, s.files, byWS); err != nil {
			return err
		}
		if res.Members, err = findAll[models.Member](sc, s.members, byWS); err != nil {
			return err
		}
		if res.Invites, err = findAll[models.Invite](sc, s.invites, byWS); err != nil {
			return err
		}
		if res.Messages, err = findAll[models.ChatMessage](sc, s.messages, byWS); err != nil {
			return err
		}
		del, err := s.workspaces.DeleteOne(sc, bson.M{"_id": workspaceID})
		if err != nil {
			return err
		}
		if del.DeletedCount == 0 {
			return fmt.Errorf("workspace %s: %w", workspaceID, models.ErrNotFound)
		}
		for _, col := range []*mongo.Collection{s.folders, s.files, s.members, s.invites, s.messages} {
			if _, err := col.DeleteMany(sc, byWS); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stampAll(res, rev)
	sortFolders(res.Folders)
	sortFiles(res.Files)
	sortMembers(res.Members)
	return res, nil
}

// Snapshot reads the workspace state. Collections are read one after another,
// so the result may mix states; the change feed's revision filter repairs that.
func (s *MongoStore) Snapshot(ctx context.Context, workspaceID string, messageLimit int) (*models.WorkspaceSnapshot, error) {
	ws, err := s.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	snap := &models.WorkspaceSnapshot{Workspace: ws}
	if snap.Members, err = s.ListMembers(ctx, workspaceID); err != nil {
		return nil, err
	}
	if snap.Folders, err = s.ListFolders(ctx, workspaceID); err != nil {
		return nil, err
	}
	if snap.Files, err = s.ListFiles(ctx, workspaceID); err != nil {
		return nil, err
	}
	if snap.Messages, err = s.ListMessages(ctx, workspaceID, messageLimit); err != nil {
		return nil, err
	}
	return snap, nil
}

// AddMember inserts a member; the unique index rejects duplicates.
func (s *MongoStore) AddMember(ctx context.Context, m *models.Member) error {
	if _, err := s.GetWorkspace(ctx, m.WorkspaceID); err != nil {
		return err
	}
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now()
	}
	m.Revision = rev
	if _, err := s.members.InsertOne(ctx, m); err != nil {
		return conflict(err, "member "+m.UserID)
	}
	return nil
}

// GetMember returns a membership record.
func (s *MongoStore) GetMember(ctx context.Context, workspaceID, userID string) (*models.Member, error) {
	var m models.Member
	err := s.members.FindOne(ctx, bson.M{"workspace_id": workspaceID, "user_id": userID}).Decode(&m)
	if err != nil {
		return nil, notFound(err, "member "+userID)
	}
	return &m, nil
}

// ListMembers returns members ordered by join time.
func (s *MongoStore) ListMembers(ctx context.Context, workspaceID string) ([]*models.Member, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "user_id", Value: 1}})
	return findAll[models.Member](ctx, s.members, bson.M{"workspace_id": workspaceID}, opts)
}

// RemoveMember deletes a membership record.
func (s *MongoStore) RemoveMember(ctx context.Context, workspaceID, userID string) (*models.Member, error) {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, err
	}
	var m models.Member
	err = s.members.FindOneAndDelete(ctx, bson.M{"workspace_id": workspaceID, "user_id": userID}).Decode(&m)
	if err != nil {
		return nil, notFound(err, "member "+userID)
	}
	m.Revision = rev
	return &m, nil
}

// CreateFolder inserts a folder after checking the parent inside the tree transaction.
func (s *MongoStore) CreateFolder(ctx context.Context, f *models.Folder) error {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt, f.Revision = now, now, rev
	return s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := s.lockTree(sc, f.WorkspaceID); err != nil {
			return err
		}
		if f.ParentID != nil {
			if err := s.folders.FindOne(sc, bson.M{"_id": *f.ParentID, "workspace_id": f.WorkspaceID}).Err(); err != nil {
				return notFound(err, "parent folder "+*f.ParentID)
			}
		}
		if _, err := s.folders.InsertOne(sc, f); err != nil {
			return conflict(err, "folder "+f.ID)
		}
		return nil
	})
}

// GetFolder returns a folder by id.
func (s *MongoStore) GetFolder(ctx context.Context, workspaceID, folderID string) (*models.Folder, error) {
	var f models.Folder
	if err := s.folders.FindOne(ctx, bson.M{"_id": folderID, "workspace_id": workspaceID}).Decode(&f); err != nil {
		return nil, notFound(err, "folder "+folderID)
	}
	return &f, nil
}

// ListFolders returns all folders of a workspace ordered by creation.
func (s *MongoStore) ListFolders(ctx context.Context, workspaceID string) ([]*models.Folder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[models.Folder](ctx, s.folders, bson.M{"workspace_id": workspaceID}, opts)
}

// maxRevisionRetries bounds how often lwwUpdate re-allocates after losing the
// revision guard to a concurrent writer.
const maxRevisionRetries = 8

// lwwUpdate writes set under a revision newer than the stored one. The guard
// misses only when another writer committed after our revision was allocated;
// the write is then retried with a fresh revision, so writers touching
// different fields of one entity both land and revisions follow commit order.
func lwwUpdate[T any](ctx context.Context, s *MongoStore, col *mongo.Collection, filter bson.M, set bson.M, what string) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		rev, err := s.nextRevision(ctx)
		if err != nil {
			return nil, err
		}
		guarded := bson.M{"revision": bson.M{"$lt": rev}}
		for k, v := range filter {
			guarded[k] = v
		}
		set["revision"] = rev
		var out T
		err = col.FindOneAndUpdate(ctx, guarded, bson.M{"$set": set}, opts).Decode(&out)
		if err == nil {
			return &out, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		if err := col.FindOne(ctx, filter).Err(); err != nil {
			return nil, notFound(err, what)
		}
	}
	return nil, fmt.Errorf("%s 修订号竞争: %w", what, models.ErrConflict)
}

// RenameFolder renames a folder with last-writer-wins by revision.
func (s *MongoStore) RenameFolder(ctx context.Context, workspaceID, folderID, name string) (*models.Folder, error) {
	return lwwUpdate[models.Folder](ctx, s, s.folders, bson.M{"_id": folderID, "workspace_id": workspaceID},
		bson.M{"name": name, "updated_at": s.now()}, "folder "+folderID)
}

// MoveFolder re-parents a folder; the cycle check runs in the same transaction as the write.
// Its revision is allocated after lockTree so tree writes get revisions in lock order.
func (s *MongoStore) MoveFolder(ctx context.Context, workspaceID, folderID string, newParentID *string) (*models.Folder, error) {
	if newParentID != nil && *newParentID == folderID {
		return nil, fmt.Errorf("folder %s into itself: %w", folderID, models.ErrInvalidMove)
	}
	var out *models.Folder
	err := s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := s.lockTree(sc, workspaceID); err != nil {
			return err
		}
		folders, err := s.ListFolders(sc, workspaceID)
		if err != nil {
			return err
		}
		byID := indexFolders(folders)
		if _, ok := byID[folderID]; !ok {
			return fmt.Errorf("folder %s: %w", folderID, models.ErrNotFound)
		}
		if newParentID != nil {
			if _, ok := byID[*newParentID]; !ok {
				return fmt.Errorf("target folder %s: %w", *newParentID, models.ErrNotFound)
			}
			if WouldCycle(folders, folderID, *newParentID) {
				return fmt.Errorf("folder %s into its descendant %s: %w", folderID, *newParentID, models.ErrInvalidMove)
			}
		}
		out, err = lwwUpdate[models.Folder](sc, s, s.folders, bson.M{"_id": folderID, "workspace_id": workspaceID},
			bson.M{"parent_id": newParentID, "updated_at": s.now()}, "folder "+folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFolder removes the subtree and its files in one transaction.
func (s *MongoStore) DeleteFolder(ctx context.Context, workspaceID, folderID string) (*models.CascadeResult, error) {
	var (
		rev int64
		res *models.CascadeResult
	)
	err := s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := s.lockTree(sc, workspaceID); err != nil {
			return err
		}
		var err error
		if rev, err = s.nextRevision(sc); err != nil {
			return err
		}
		folders, err := s.ListFolders(sc, workspaceID)
		if err != nil {
			return err
		}
		byID := indexFolders(folders)
		if _, ok := byID[folderID]; !ok {
			return fmt.Errorf("folder %s: %w", folderID, models.ErrNotFound)
		}
		subtree := Subtree(folders, folderID)
		ids := make([]string, 0, len(subtree))
		res = &models.CascadeResult{Revision: rev}
		for id := range subtree {
			ids = append(ids, id)
			res.Folders = append(res.Folders, byID[id])
		}
		fileFilter := bson.M{"workspace_id": workspaceID, "folder_id": bson.M{"$in": ids}}
		if res.Files, err = findAll[models.File](sc, s.files, fileFilter); err != nil {
			return err
		}
		if _, err := s.files.DeleteMany(sc, fileFilter); err != nil {
			return err
		}
		_, err = s.folders.DeleteMany(sc, bson.M{"workspace_id": workspaceID, "_id": bson.M{"$in": ids}})
		return err
	})
	if err != nil {
		return nil, err
	}
	stampAll(res, rev)
	sortFolders(res.Folders)
	sortFiles(res.Files)
	return res, nil
}

// CreateFile inserts a file after checking its folder inside the tree transaction.
func (s *MongoStore) CreateFile(ctx context.Context, f *models.File) error {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt, f.Revision = now, now, rev
	return s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := s.lockTree(sc, f.WorkspaceID); err != nil {
			return err
		}
		if f.FolderID != nil {
			if err := s.folders.FindOne(sc, bson.M{"_id": *f.FolderID, "workspace_id": f.WorkspaceID}).Err(); err != nil {
				return notFound(err, "parent folder "+*f.FolderID)
			}
		}
		if _, err := s.files.InsertOne(sc, f); err != nil {
			return conflict(err, "file "+f.ID)
		}
		return nil
	})
}

// GetFile returns a file by id.
func (s *MongoStore) GetFile(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	var f models.File
	if err := s.files.FindOne(ctx, bson.M{"_id": fileID, "workspace_id": workspaceID}).Decode(&f); err != nil {
		return nil, notFound(err, "file "+fileID)
	}
	return &f, nil
}

// ListFiles returns all files of a workspace ordered by creation.
func (s *MongoStore) ListFiles(ctx context.Context, workspaceID string) ([]*models.File, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[models.File](ctx, s.files, bson.M{"workspace_id": workspaceID}, opts)
}

// RenameFile renames a file with last-writer-wins by revision.
func (s *MongoStore) RenameFile(ctx context.Context, workspaceID, fileID, name string) (*models.File, error) {
	return lwwUpdate[models.File](ctx, s, s.files, bson.M{"_id": fileID, "workspace_id": workspaceID},
		bson.M{"name": name, "updated_at": s.now()}, "file "+fileID)
}

// MoveFile moves a file to another folder of the same workspace.
func (s *MongoStore) MoveFile(ctx context.Context, workspaceID, fileID string, newFolderID *string) (*models.File, error) {
	var out *models.File
	err := s.withTxn(ctx, func(sc mongo.SessionContext) error {
		if err := s.lockTree(sc, workspaceID); err != nil {
			return err
		}
		if newFolderID != nil {
			if err := s.folders.FindOne(sc, bson.M{"_id": *newFolderID, "workspace_id": workspaceID}).Err(); err != nil {
				return notFound(err, "target folder "+*newFolderID)
			}
		}
		var err error
		out, err = lwwUpdate[models.File](sc, s, s.files, bson.M{"_id": fileID, "workspace_id": workspaceID},
			bson.M{"folder_id": newFolderID, "updated_at": s.now()}, "file "+fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFileContent replaces the whole content with last-writer-wins by revision.
func (s *MongoStore) UpdateFileContent(ctx context.Context, workspaceID, fileID, content, language string) (*models.File, error) {
	set := bson.M{"content": content, "updated_at": s.now()}
	if language != "" {
		set["language"] = language
	}
	return lwwUpdate[models.File](ctx, s, s.files, bson.M{"_id": fileID, "workspace_id": workspaceID}, set, "file "+fileID)
}

// DeleteFile removes a file.
func (s *MongoStore) DeleteFile(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, err
	}
	var f models.File
	if err := s.files.FindOneAndDelete(ctx, bson.M{"_id": fileID, "workspace_id": workspaceID}).Decode(&f); err != nil {
		return nil, notFound(err, "file "+fileID)
	}
	f.Revision = rev
	return &f, nil
}

// CreateInvite inserts a pending invite; an existing one is returned unchanged.
func (s *MongoStore) CreateInvite(ctx context.Context, inv *models.Invite) (*models.Invite, bool, error) {
	ws, err := s.GetWorkspace(ctx, inv.WorkspaceID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.GetMember(ctx, inv.WorkspaceID, inv.TargetUserID); err == nil {
		return nil, false, fmt.Errorf("user %s is already a member: %w", inv.TargetUserID, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, false, err
	}
	inv.WorkspaceName = ws.Name
	inv.CreatedAt = s.now()
	inv.Revision = rev
	if _, err := s.invites.InsertOne(ctx, inv); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, err
		}
		var existing models.Invite
		filter := bson.M{"target_user_id": inv.TargetUserID, "workspace_id": inv.WorkspaceID}
		if err := s.invites.FindOne(ctx, filter).Decode(&existing); err != nil {
			return nil, false, notFound(err, "invite")
		}
		return &existing, false, nil
	}
	return inv, true, nil
}

// ListInvites returns the user's pending invites, oldest first.
func (s *MongoStore) ListInvites(ctx context.Context, userID string) ([]*models.Invite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "workspace_id", Value: 1}})
	return findAll[models.Invite](ctx, s.invites, bson.M{"target_user_id": userID}, opts)
}

// DeleteInvite removes a pending invite (decline).
func (s *MongoStore) DeleteInvite(ctx context.Context, userID, workspaceID string) (*models.Invite, error) {
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, err
	}
	var inv models.Invite
	err = s.invites.FindOneAndDelete(ctx, bson.M{"target_user_id": userID, "workspace_id": workspaceID}).Decode(&inv)
	if err != nil {
		return nil, notFound(err, "invite to "+workspaceID)
	}
	inv.Revision = rev
	return &inv, nil
}

// AcceptInvite deletes the invite and inserts the contributor in one transaction.
func (s *MongoStore) AcceptInvite(ctx context.Context, userID, workspaceID string, member *models.Member) (*models.Member, *models.Invite, error) {
	inviteRev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, nil, err
	}
	memberRev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, nil, err
	}
	var (
		outMember *models.Member
		outInvite models.Invite
	)
	err = s.withTxn(ctx, func(sc mongo.SessionContext) error {
		err := s.invites.FindOneAndDelete(sc, bson.M{"target_user_id": userID, "workspace_id": workspaceID}).Decode(&outInvite)
		if err != nil {
			return notFound(err, "invite to "+workspaceID)
		}
		if existing, err := s.GetMember(sc, workspaceID, userID); err == nil {
			outMember = existing
			return nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		m := *member
		m.WorkspaceID, m.UserID, m.Role = workspaceID, userID, models.RoleContributor
		m.JoinedAt, m.Revision = s.now(), memberRev
		if _, err := s.members.InsertOne(sc, &m); err != nil {
			return conflict(err, "member "+userID)
		}
		outMember = &m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	outInvite.Revision = inviteRev
	return outMember, &outInvite, nil
}

// AppendMessage inserts a chat message with a ULID id.
func (s *MongoStore) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	if _, err := s.GetWorkspace(ctx, m.WorkspaceID); err != nil {
		return err
	}
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.Revision = rev
	_, err = s.messages.InsertOne(ctx, m)
	return err
}

// ListMessages returns the latest messages in chronological order.
func (s *MongoStore) ListMessages(ctx context.Context, workspaceID string, limit int) ([]*models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := findAll[models.ChatMessage](ctx, s.messages, bson.M{"workspace_id": workspaceID}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessages clears the chat history of a workspace.
func (s *MongoStore) DeleteMessages(ctx context.Context, workspaceID string) (*models.CascadeResult, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	rev, err := s.nextRevision(ctx)
	if err != nil {
		return nil, err
	}
	res := &models.CascadeResult{Revision: rev}
	err = s.withTxn(ctx, func(sc mongo.SessionContext) error {
		var err error
		filter := bson.M{"workspace_id": workspaceID}
		if res.Messages, err = findAll[models.ChatMessage](sc, s.messages, filter); err != nil {
			return err
		}
		_, err = s.messages.DeleteMany(sc, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	stampAll(res, rev)
	return res, nil
}

func stampAll(res *models.CascadeResult, rev int64) {
	for _, f := range res.Folders {
		f.Revision = rev
	}
	for _, f := range res.Files {
		f.Revision = rev
	}
	for _, m := range res.Members {
		m.Revision = rev
	}
	for _, i := range res.Invites {
		i.Revision = rev
	}
	for _, m := range res.Messages {
		m.Revision = rev
	}
}
