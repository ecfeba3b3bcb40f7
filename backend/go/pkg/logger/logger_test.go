package logger

import (
	"SynapseCode/backend/go/internal/models"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(logrus.DebugLevel, &buf)

	l := New("workspace_service", "trace-1", "user-1")
	l.WithPayload(map[string]interface{}{"workspaceID": "ws-1"}).Info("folder created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "folder created", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "workspace_service", line["service_name"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Contains(t, line, "timestamp")
}

func TestDerivedLoggerDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(logrus.InfoLevel, &buf)

	parent := New("gateway", "", "")
	_ = parent.WithField("session_id", "s-1")
	parent.Info("plain")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "session_id")
}

func TestWithErrCarriesErrorCode(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(logrus.InfoLevel, &buf)

	New("user_service", "", "").WithErr(fmt.Errorf("user u1: %w", models.ErrNotFound)).Warn("lookup failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	errField, ok := line["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "not_found", errField["code"])
	assert.Contains(t, errField["message"], "user u1")
}
