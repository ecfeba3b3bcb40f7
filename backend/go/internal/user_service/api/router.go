package api

import (
	"SynapseCode/backend/go/pkg/httpmiddleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 挂载认证和用户资料相关的路由。
func RegisterRoutes(r gin.IRouter, h *Handler, verifier httpmiddleware.TokenVerifier) {
	apiV1 := r.Group("/api/v1")

	auth := apiV1.Group("/auth")
	{
		auth.POST("/register", h.RegisterEmail)
		auth.POST("/login", h.LoginEmail)
		auth.POST("/google", h.GoogleLogin)
		auth.POST("/password-reset", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	}

	users := apiV1.Group("/users")
	users.Use(httpmiddleware.Auth(verifier))
	{
		users.GET("", h.SearchUsers)
		users.GET("/me", h.Me)
		users.PUT("/me", h.UpdateMe)
		users.GET("/me/settings", h.GetSettings)
		users.PUT("/me/settings", h.PutSettings)
	}
}
