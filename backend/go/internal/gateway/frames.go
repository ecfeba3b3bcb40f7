package gateway

import (
	"SynapseCode/backend/go/internal/models"
)

// 服务端发往客户端的帧类型。
const (
	FrameHello    = "hello"
	FrameChange   = "change"
	FramePresence = "presence"
	FrameAck      = "ack"
	FrameError    = "error"
)

// 客户端发往服务端的帧类型。
const (
	FrameCursor   = "cursor"
	FrameMutation = "mutation"
)

// ServerFrame 是下行帧。一个会话上的 change 和 presence 事件复用同一个连接。
type ServerFrame struct {
	Type     string                   `json:"type"`
	ID       string                   `json:"id,omitempty"`
	Role     models.Role              `json:"role,omitempty"`
	Event    *models.ChangeEvent      `json:"event,omitempty"`
	Presence *models.PresenceSnapshot `json:"presence,omitempty"`
	Result   interface{}              `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// ClientFrame 是上行帧。ID 由客户端生成，ack/error 帧会原样带回。
type ClientFrame struct {
	Type     string           `json:"type"`
	ID       string           `json:"id,omitempty"`
	Position *models.Position `json:"position,omitempty"`
	Mutation *Mutation        `json:"mutation,omitempty"`
}

// Mutation 操作名。
const (
	OpCreateFolder  = "createFolder"
	OpRenameFolder  = "renameFolder"
	OpMoveFolder    = "moveFolder"
	OpDeleteFolder  = "deleteFolder"
	OpCreateFile    = "createFile"
	OpRenameFile    = "renameFile"
	OpMoveFile      = "moveFile"
	OpUpdateContent = "updateContent"
	OpDeleteFile    = "deleteFile"
	OpPostMessage   = "postMessage"
)

// Mutation 是通过 WebSocket 提交的修改请求，字段按 Op 取用。
type Mutation struct {
	Op               string  `json:"op"`
	TargetID         string  `json:"targetId,omitempty"`
	Name             string  `json:"name,omitempty"`
	ParentID         *string `json:"parentId,omitempty"`
	FolderID         *string `json:"folderId,omitempty"`
	Content          string  `json:"content,omitempty"`
	Language         string  `json:"language,omitempty"`
	Text             string  `json:"text,omitempty"`
	IdempotencyToken string  `json:"idempotencyToken,omitempty"`
}

func errorFrame(id string, err error) ServerFrame {
	return ServerFrame{Type: FrameError, ID: id, Error: models.ErrorCode(err), Message: err.Error()}
}
