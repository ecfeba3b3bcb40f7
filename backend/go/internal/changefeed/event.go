package changefeed

import (
	"SynapseCode/backend/go/internal/models"
	"encoding/json"
	"fmt"
	"sort"
)

// NewEvent builds a change event carrying the full JSON state of entity.
func NewEvent(topic string, kind models.EntityKind, op models.ChangeOp, entityID string, revision int64, entity interface{}) (models.ChangeEvent, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return models.ChangeEvent{}, fmt.Errorf("序列化 %s/%s 失败: %w", kind, entityID, err)
	}
	return models.ChangeEvent{
		Topic:    topic,
		Kind:     kind,
		Op:       op,
		EntityID: entityID,
		Revision: revision,
		Entity:   raw,
	}, nil
}

// MemberEntityID is the entity id used for member events (one member per user).
func MemberEntityID(m *models.Member) string {
	return m.UserID
}

// SnapshotEvents turns a workspace snapshot into "created" events, one per entity.
func SnapshotEvents(snap *models.WorkspaceSnapshot) ([]models.ChangeEvent, error) {
	topic := models.WorkspaceTopic(snap.Workspace.ID)
	var out []models.ChangeEvent
	add := func(kind models.EntityKind, id string, rev int64, v interface{}) error {
		ev, err := NewEvent(topic, kind, models.OpCreated, id, rev, v)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	}
	if err := add(models.KindWorkspace, snap.Workspace.ID, snap.Workspace.Revision, snap.Workspace); err != nil {
		return nil, err
	}
	for _, m := range snap.Members {
		if err := add(models.KindMember, MemberEntityID(m), m.Revision, m); err != nil {
			return nil, err
		}
	}
	for _, f := range parentsFirst(snap.Folders) {
		if err := add(models.KindFolder, f.ID, f.Revision, f); err != nil {
			return nil, err
		}
	}
	for _, f := range snap.Files {
		if err := add(models.KindFile, f.ID, f.Revision, f); err != nil {
			return nil, err
		}
	}
	for _, m := range snap.Messages {
		if err := add(models.KindChat, m.ID, m.Revision, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InviteEvents turns a user's pending invites into "created" events on the user topic.
func InviteEvents(userID string, invites []*models.Invite) ([]models.ChangeEvent, error) {
	out := make([]models.ChangeEvent, 0, len(invites))
	for _, inv := range invites {
		ev, err := NewEvent(models.UserTopic(userID), models.KindInvite, models.OpCreated, inv.WorkspaceID, inv.Revision, inv)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// parentsFirst orders folders by depth so a client never sees a child before its parent.
func parentsFirst(folders []*models.Folder) []*models.Folder {
	byID := make(map[string]*models.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	depth := make(map[string]int, len(folders))
	var depthOf func(f *models.Folder, guard int) int
	depthOf = func(f *models.Folder, guard int) int {
		if d, ok := depth[f.ID]; ok {
			return d
		}
		d := 0
		if f.ParentID != nil && guard < len(folders) {
			if p, ok := byID[*f.ParentID]; ok {
				d = depthOf(p, guard+1) + 1
			}
		}
		depth[f.ID] = d
		return d
	}
	out := append([]*models.Folder(nil), folders...)
	for _, f := range out {
		depthOf(f, 0)
	}
	sort.SliceStable(out, func(i, j int) bool { return depth[out[i].ID] < depth[out[j].ID] })
	return out
}
