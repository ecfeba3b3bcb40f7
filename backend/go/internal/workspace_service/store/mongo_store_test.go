package store

import (
	"context"
	"os"
	"testing"
	"time"

	"SynapseCode/backend/go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TestMongoStoreContract runs against a real replica set when SYNAPSE_TEST_MONGO_URI is set,
// e.g. mongodb://localhost:27017/?replicaSet=rs0
func TestMongoStoreContract(t *testing.T) {
	client := connectTestMongo(t)
	runStoreContract(t, func(t *testing.T) Store {
		return newTestMongoStore(t, client)
	})
}

// A rename that commits between the move allocating its revision and writing
// must not turn the move into a silent no-op.
func TestMongoMoveSurvivesNewerCommittedRevision(t *testing.T) {
	s := newTestMongoStore(t, connectTestMongo(t))
	ctx := context.Background()
	ws := newWorkspace(t, s, "alice")
	target := newFolder(t, s, ws.ID, "target", nil)
	folder := newFolder(t, s, ws.ID, "dir", nil)
	file := newFile(t, s, ws.ID, "a.go", nil)

	// the stored revision runs two ahead of the counter, as if another writer
	// allocated and committed after this one took its revision
	jumpAhead := func(col *mongo.Collection, id, name string) int64 {
		var counter struct {
			Seq int64 `bson:"seq"`
		}
		require.NoError(t, s.counters.FindOne(ctx, bson.M{"_id": revisionCounterID}).Decode(&counter))
		ahead := counter.Seq + 2
		_, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"revision": ahead, "name": name}})
		require.NoError(t, err)
		return ahead
	}

	ahead := jumpAhead(s.folders, folder.ID, "renamed")
	movedFolder, err := s.MoveFolder(ctx, ws.ID, folder.ID, &target.ID)
	require.NoError(t, err)
	require.NotNil(t, movedFolder.ParentID)
	assert.Equal(t, target.ID, *movedFolder.ParentID)
	assert.Equal(t, "renamed", movedFolder.Name)
	assert.Greater(t, movedFolder.Revision, ahead)

	ahead = jumpAhead(s.files, file.ID, "renamed.go")
	movedFile, err := s.MoveFile(ctx, ws.ID, file.ID, &target.ID)
	require.NoError(t, err)
	require.NotNil(t, movedFile.FolderID)
	assert.Equal(t, target.ID, *movedFile.FolderID)
	assert.Equal(t, "renamed.go", movedFile.Name)
	assert.Greater(t, movedFile.Revision, ahead)

	got, err := s.GetFile(ctx, ws.ID, file.ID)
	require.NoError(t, err)
	assert.Equal(t, movedFile.Revision, got.Revision)

	_, err = s.MoveFile(ctx, ws.ID, "missing", &target.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func connectTestMongo(t *testing.T) *mongo.Client {
	t.Helper()
	uri := os.Getenv("SYNAPSE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SYNAPSE_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func newTestMongoStore(t *testing.T, client *mongo.Client) *MongoStore {
	t.Helper()
	db := client.Database("synapse_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	s := NewMongoStore(client, db)
	require.NoError(t, s.EnsureIndexes(context.Background()))
	return s
}
