package models

import (
	"encoding/json"
	"time"
)

// EntityKind 标识变更事件涉及的集合。
type EntityKind string

const (
	KindWorkspace EntityKind = "workspace"
	KindMember    EntityKind = "member"
	KindFolder    EntityKind = "folder"
	KindFile      EntityKind = "file"
	KindInvite    EntityKind = "invite"
	KindChat      EntityKind = "chat"
)

// ChangeOp 是变更操作的类型。
type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
	// OpSynced 标记快照已经发送完毕，之后的事件都是增量。
	OpSynced ChangeOp = "synced"
)

// ChangeEvent 是变更流中的一条记录。
//
// 同一实体的事件按 Revision 严格递增交付；不同实体之间不保证全序。
type ChangeEvent struct {
	Seq      uint64          `json:"seq"`
	Topic    string          `json:"topic"`
	Kind     EntityKind      `json:"kind,omitempty"`
	Op       ChangeOp        `json:"op"`
	EntityID string          `json:"entityId,omitempty"`
	Revision int64           `json:"revision,omitempty"`
	Entity   json.RawMessage `json:"entity,omitempty"`
	Snapshot bool            `json:"snapshot,omitempty"`
	Origin   string          `json:"origin,omitempty"`
	At       time.Time       `json:"at"`
}

// EntityKey 返回用于因果排序的实体键。
func (e ChangeEvent) EntityKey() string {
	return string(e.Kind) + "/" + e.EntityID
}

// Decode 将事件携带的实体解析到 v 中。
func (e ChangeEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Entity, v)
}

// WorkspaceTopic 返回工作区变更流的主题名。
func WorkspaceTopic(workspaceID string) string {
	return "workspace:" + workspaceID
}

// UserTopic 返回用户个人收件箱（邀请）的主题名。
func UserTopic(userID string) string {
	return "user:" + userID
}
