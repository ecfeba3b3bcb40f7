package api

import (
	"SynapseCode/backend/go/pkg/httpmiddleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 把工作区服务的全部 REST 路由挂到 /api/v1 下，并统一使用 JWT 认证。
func RegisterRoutes(r gin.IRouter, h *Handler, verifier httpmiddleware.TokenVerifier) {
	v1 := r.Group("/api/v1")
	v1.Use(httpmiddleware.Auth(verifier))

	workspaces := v1.Group("/workspaces")
	{
		workspaces.GET("", h.ListWorkspaces)
		workspaces.POST("", h.CreateWorkspace)
		workspaces.GET("/:id", h.GetWorkspace)
		workspaces.DELETE("/:id", h.DeleteWorkspace)

		workspaces.GET("/:id/members", h.ListMembers)
		workspaces.DELETE("/:id/members/me", h.LeaveWorkspace)
		workspaces.POST("/:id/invites", h.Invite)

		workspaces.POST("/:id/folders", h.CreateFolder)
		workspaces.PUT("/:id/folders/:folderId/name", h.RenameFolder)
		workspaces.PUT("/:id/folders/:folderId/parent", h.MoveFolder)
		workspaces.DELETE("/:id/folders/:folderId", h.DeleteFolder)

		workspaces.POST("/:id/files", h.CreateFile)
		workspaces.GET("/:id/files/:fileId", h.GetFile)
		workspaces.PUT("/:id/files/:fileId/name", h.RenameFile)
		workspaces.PUT("/:id/files/:fileId/folder", h.MoveFile)
		workspaces.PUT("/:id/files/:fileId/content", h.UpdateFileContent)
		workspaces.DELETE("/:id/files/:fileId", h.DeleteFile)
		workspaces.POST("/:id/files/:fileId/document", h.DocumentFile)
		workspaces.POST("/:id/files/:fileId/fix", h.FixFile)
		workspaces.POST("/:id/files/:fileId/run", h.RunFile)

		workspaces.GET("/:id/messages", h.ListMessages)
		workspaces.POST("/:id/messages", h.PostMessage)
		workspaces.DELETE("/:id/messages", h.ClearChat)
	}

	invites := v1.Group("/invites")
	{
		invites.GET("", h.ListInvites)
		invites.POST("/:workspaceId/accept", h.AcceptInvite)
		invites.DELETE("/:workspaceId", h.DeclineInvite)
	}
}
