package httpmiddleware

import (
	"SynapseCode/backend/go/internal/models"
	"net/http"

	"github.com/gin-gonic/gin"
)

var statusByCode = map[string]int{
	"unauthorized":         http.StatusUnauthorized,
	"forbidden":            http.StatusForbidden,
	"invalid_name":         http.StatusBadRequest,
	"invalid_move":         http.StatusBadRequest,
	"not_found":            http.StatusNotFound,
	"upstream_unavailable": http.StatusBadGateway,
	"conflict":             http.StatusConflict,
	"invalid_input":        http.StatusBadRequest,
	"draining":             http.StatusServiceUnavailable,
}

// ErrorStatus 把领域错误映射为 HTTP 状态码和机器可读的错误码。
func ErrorStatus(err error) (int, string) {
	code := models.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, code
}

// RespondError 写出 {"error": code, "message": ...}。5xx 不暴露内部细节。
func RespondError(c *gin.Context, err error) {
	status, code := ErrorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "Internal Server Error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}
