package api

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/user_service/service"
	"SynapseCode/backend/go/pkg/httpmiddleware"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service) *Handler {
	return &Handler{service: s}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpmiddleware.RespondError(c, fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
		return false
	}
	return true
}

// --- Registration and Login Handlers ---

// RegisterEmailRequest 定义了邮箱注册请求的 JSON 结构。
type RegisterEmailRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"required"`
	FullName string `json:"fullName"`
}

// RegisterEmail 处理邮箱注册请求，注册成功即登录。
func (h *Handler) RegisterEmail(c *gin.Context) {
	var req RegisterEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Username, req.FullName)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// LoginEmailRequest 定义了邮箱登录请求的 JSON 结构。
type LoginEmailRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginEmail 处理邮箱登录请求。
func (h *Handler) LoginEmail(c *gin.Context) {
	var req LoginEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GoogleLoginRequest 携带前端从 Google 拿到的 ID token，由后端校验。
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// GoogleLogin 处理 Google 登录。
func (h *Handler) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.service.GoogleLogin(c.Request.Context(), req.IDToken)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// RequestPasswordReset 发送重置邮件。无论邮箱是否注册都返回 202。
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.service.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ConfirmPasswordReset 用邮件中的令牌设置新密码。
func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Profile Handlers ---

// Me 返回当前用户的资料。
func (h *Handler) Me(c *gin.Context) {
	profile, err := h.service.Profile(c.Request.Context(), httpmiddleware.UserID(c))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMe 修改展示名或头像。
func (h *Handler) UpdateMe(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName"`
		PhotoRef string `json:"photoRef"`
	}
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), httpmiddleware.UserID(c), req.FullName, req.PhotoRef)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// GetSettings 返回编辑器偏好。
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.service.Settings(c.Request.Context(), httpmiddleware.UserID(c))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// PutSettings 替换编辑器偏好。
func (h *Handler) PutSettings(c *gin.Context) {
	var req models.UserSettings
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.service.UpdateSettings(c.Request.Context(), httpmiddleware.UserID(c), req)
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SearchUsers 处理 GET /users?email=<prefix>。
func (h *Handler) SearchUsers(c *gin.Context) {
	users, err := h.service.SearchUsers(c.Request.Context(), httpmiddleware.UserID(c), c.Query("email"))
	if err != nil {
		httpmiddleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
