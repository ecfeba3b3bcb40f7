package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ws := newWorkspace(t, s, "alice")
	f := newFolder(t, s, ws.ID, "src", nil)

	got, err := s.GetFolder(ctx, ws.ID, f.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.GetFolder(ctx, ws.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "src", again.Name)
}

func TestMemoryStoreFailedMoveLeavesFileUntouched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ws := newWorkspace(t, s, "alice")
	file := newFile(t, s, ws.ID, "main", nil)

	_, err := s.MoveFile(ctx, ws.ID, file.ID, strPtr("missing"))
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := s.GetFile(ctx, ws.ID, file.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)
	assert.Equal(t, file.Revision, got.Revision)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetWorkspace(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)
}
