package httpmiddleware

import (
	"SynapseCode/backend/go/internal/models"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestErrorStatusTable(t *testing.T) {
	cases := map[error]int{
		models.ErrUnauthorized:        http.StatusUnauthorized,
		models.ErrForbidden:           http.StatusForbidden,
		models.ErrInvalidName:         http.StatusBadRequest,
		models.ErrInvalidMove:         http.StatusBadRequest,
		models.ErrNotFound:            http.StatusNotFound,
		models.ErrUpstreamUnavailable: http.StatusBadGateway,
		models.ErrConflict:            http.StatusConflict,
		models.ErrInvalidInput:        http.StatusBadRequest,
		models.ErrDraining:            http.StatusServiceUnavailable,
	}
	for sentinel, want := range cases {
		status, _ := ErrorStatus(fmt.Errorf("wrapped: %w", sentinel))
		assert.Equal(t, want, status, sentinel.Error())
	}
	status, code := ErrorStatus(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}

func TestRespondErrorHidesInternalMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondError(c, fmt.Errorf("dial tcp 10.0.0.3: refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal","message":"Internal Server Error"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondError(c, fmt.Errorf("folder f1: %w", models.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"not_found"`)
}
