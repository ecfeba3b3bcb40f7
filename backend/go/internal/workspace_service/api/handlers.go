package api

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/workspace_service/service"
	"SynapseCode/backend/go/pkg/httpmiddleware"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler 封装了工作区 REST 接口的处理函数。
type Handler struct {
	service *service.Service
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service) *Handler {
	return &Handler{service: s}
}

// callerFrom 从 Auth 中间件写入的身份构造调用者。
func callerFrom(c *gin.Context) service.Caller {
	id := httpmiddleware.Identity(c)
	return service.Caller{UserID: id.UserID, DisplayName: id.DisplayName, AvatarRef: id.PhotoRef}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return false
	}
	return true
}

// --- Workspaces ---

// CreateWorkspaceRequest 定义了创建工作区请求的 JSON 结构。
type CreateWorkspaceRequest struct {
	Name             string            `json:"name"`
	Visibility       models.Visibility `json:"visibility"`
	IdempotencyToken string            `json:"idempotencyToken"`
}

// CreateWorkspace 创建工作区，调用者成为 owner。
func (h *Handler) CreateWorkspace(c *gin.Context) {
	var req CreateWorkspaceRequest
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.service.CreateWorkspace(c.Request.Context(), callerFrom(c), req.Name, req.Visibility, req.IdempotencyToken)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

// ListWorkspaces 返回调用者所在的全部工作区。
func (h *Handler) ListWorkspaces(c *gin.Context) {
	list, err := h.service.ListWorkspaces(c.Request.Context(), callerFrom(c))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": list})
}

// GetWorkspace 返回工作区快照和调用者的角色。
func (h *Handler) GetWorkspace(c *gin.Context) {
	snap, role, err := h.service.Snapshot(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap, "role": role})
}

// DeleteWorkspace 删除工作区（仅 owner）。
func (h *Handler) DeleteWorkspace(c *gin.Context) {
	res, err := h.service.DeleteWorkspace(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListMembers 返回工作区成员。
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.service.ListMembers(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// LeaveWorkspace 让调用者退出工作区。
func (h *Handler) LeaveWorkspace(c *gin.Context) {
	if err := h.service.LeaveWorkspace(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Invites ---

// InviteRequest 定义了邀请请求的 JSON 结构。
type InviteRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Invite 邀请一个用户加入工作区。
func (h *Handler) Invite(c *gin.Context) {
	var req InviteRequest
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.service.Invite(c.Request.Context(), callerFrom(c), c.Param("id"), service.InviteRequest{
		TargetUserID: req.UserID,
		TargetEmail:  req.Email,
	})
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// ListInvites 返回调用者待处理的邀请。
func (h *Handler) ListInvites(c *gin.Context) {
	invites, err := h.service.ListInvites(c.Request.Context(), callerFrom(c))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

// AcceptInvite 接受邀请。
func (h *Handler) AcceptInvite(c *gin.Context) {
	m, err := h.service.AcceptInvite(c.Request.Context(), callerFrom(c), c.Param("workspaceId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeclineInvite 拒绝邀请。
func (h *Handler) DeclineInvite(c *gin.Context) {
	if err := h.service.DeclineInvite(c.Request.Context(), callerFrom(c), c.Param("workspaceId")); err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Folders ---

// CreateFolderRequest 定义了创建文件夹请求的 JSON 结构。ParentID 为空表示顶层。
type CreateFolderRequest struct {
	Name             string  `json:"name"`
	ParentID         *string `json:"parentId"`
	IdempotencyToken string  `json:"idempotencyToken"`
}

// CreateFolder 创建文件夹。
func (h *Handler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.CreateFolder(c.Request.Context(), callerFrom(c), c.Param("id"), req.Name, req.ParentID, req.IdempotencyToken)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameFolder 重命名文件夹。
func (h *Handler) RenameFolder(c *gin.Context) {
	var req renameRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.RenameFolder(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("folderId"), req.Name)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type moveFolderRequest struct {
	ParentID *string `json:"parentId"`
}

// MoveFolder 移动文件夹。
func (h *Handler) MoveFolder(c *gin.Context) {
	var req moveFolderRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.MoveFolder(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("folderId"), req.ParentID)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// DeleteFolder 级联删除文件夹。
func (h *Handler) DeleteFolder(c *gin.Context) {
	res, err := h.service.DeleteFolder(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("folderId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Files ---

// CreateFileRequest 定义了创建文件请求的 JSON 结构。FolderID 为空表示顶层。
type CreateFileRequest struct {
	Name             string  `json:"name"`
	FolderID         *string `json:"folderId"`
	Language         string  `json:"language"`
	IdempotencyToken string  `json:"idempotencyToken"`
}

// CreateFile 创建文件。
func (h *Handler) CreateFile(c *gin.Context) {
	var req CreateFileRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.CreateFile(c.Request.Context(), callerFrom(c), c.Param("id"), req.Name, req.FolderID, req.Language, req.IdempotencyToken)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// GetFile 返回文件内容和它的路径。
func (h *Handler) GetFile(c *gin.Context) {
	ctx, caller := c.Request.Context(), callerFrom(c)
	f, err := h.service.GetFile(ctx, caller, c.Param("id"), c.Param("fileId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	path, err := h.service.ResolvePath(ctx, caller, c.Param("id"), f.ID)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": f, "path": path})
}

// RenameFile 重命名文件。
func (h *Handler) RenameFile(c *gin.Context) {
	var req renameRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.RenameFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"), req.Name)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type moveFileRequest struct {
	FolderID *string `json:"folderId"`
}

// MoveFile 把文件移到另一个文件夹。
func (h *Handler) MoveFile(c *gin.Context) {
	var req moveFileRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.MoveFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"), req.FolderID)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// UpdateContentRequest 定义了保存文件内容请求的 JSON 结构。
type UpdateContentRequest struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// UpdateFileContent 整体替换文件内容。
func (h *Handler) UpdateFileContent(c *gin.Context) {
	var req UpdateContentRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.service.UpdateFileContent(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"), req.Content, req.Language)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// DeleteFile 删除文件。
func (h *Handler) DeleteFile(c *gin.Context) {
	f, err := h.service.DeleteFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// DocumentFile 让 AI 为文件生成注释并追加到文件末尾。
func (h *Handler) DocumentFile(c *gin.Context) {
	f, err := h.service.DocumentFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// FixFile 让 AI 修复文件中的语法错误。
func (h *Handler) FixFile(c *gin.Context) {
	f, err := h.service.FixFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type runRequest struct {
	Stdin string `json:"stdin"`
}

// RunFile 在代码执行服务上运行文件。
func (h *Handler) RunFile(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.service.ExecuteFile(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("fileId"), req.Stdin)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Chat ---

type postMessageRequest struct {
	Text string `json:"text"`
}

// PostMessage 发送一条聊天消息。
func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.service.PostMessage(c.Request.Context(), callerFrom(c), c.Param("id"), req.Text)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMessages 返回最近的聊天记录。
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.service.ListMessages(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ClearChat 清空聊天记录。
func (h *Handler) ClearChat(c *gin.Context) {
	if _, err := h.service.ClearChat(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
