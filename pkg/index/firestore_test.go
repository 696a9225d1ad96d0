package index_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hearth/pkg/index"
	"github.com/m-mizutani/hearth/pkg/model"
)

func TestFirestoreIndex(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	ctx := context.Background()
	idx, err := index.NewFirestore(ctx, projectID, databaseID, "test_memories", 4)
	gt.NoError(t, err)
	defer idx.Close()

	gt.NoError(t, idx.Init(ctx))
	gt.NoError(t, idx.Init(ctx))

	sessionID := model.NewSessionID()
	rec := newRecord(sessionID, "User: I have a presentation\nTherapist: Let's prepare", []float32{1, 0, 0, 0})
	gt.NoError(t, idx.Upsert(ctx, rec))

	matches, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 3, &model.MemoryFilter{SessionID: sessionID})
	gt.NoError(t, err)
	gt.A(t, matches).Longer(0)
	gt.Equal(t, matches[0].Record.ID, rec.ID)
	gt.True(t, matches[0].Score > 0.99)
}
