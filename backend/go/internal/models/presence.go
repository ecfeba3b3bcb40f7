package models

import "time"

// Position 是光标在编辑器画布中的坐标。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceRecord 是某个用户在某个工作区中的临时在线状态，不持久化。
type PresenceRecord struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ColorTag    string    `json:"colorTag"`
	Position    Position  `json:"position"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PresenceSnapshot 是某个工作区当前全部存活的在线记录，按用户 ID 索引。
type PresenceSnapshot struct {
	WorkspaceID string                    `json:"workspaceId"`
	Records     map[string]PresenceRecord `json:"records"`
	At          time.Time                 `json:"at"`
}
