package cmd

import (
	"SynapseCode/backend/go/internal/models"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestRenderTree(t *testing.T) {
	snap := &models.WorkspaceSnapshot{
		Workspace: &models.Workspace{Name: "W", Visibility: models.VisibilityPrivate},
		Folders: []*models.Folder{
			{ID: "f-src", Name: "src"},
			{ID: "f-util", Name: "util", ParentID: ptr("f-src")},
		},
		Files: []*models.File{
			{ID: "1", Name: "README"},
			{ID: "2", Name: "main", FolderID: ptr("f-src")},
			{ID: "3", Name: "strings", FolderID: ptr("f-util")},
		},
	}
	var out bytes.Buffer
	renderTree(&out, snap)
	want := "W (private)\n" +
		"├── src/\n" +
		"│   ├── util/\n" +
		"│   │   └── strings  [3]\n" +
		"│   └── main  [2]\n" +
		"└── README  [1]\n"
	assert.Equal(t, want, out.String())
}

func TestRESTClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden","message":"workspace w1 requires owner or contributor"}`))
	}))
	defer srv.Close()

	err := newRESTClient(srv.URL, "tok").do(http.MethodGet, "/x", nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "forbidden", apiErr.Code)
}
