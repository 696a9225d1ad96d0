package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	admin "cloud.google.com/go/firestore/apiv1/admin"
	"cloud.google.com/go/firestore/apiv1/admin/adminpb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	fieldEmbedding = "embedding"
	fieldSessionID = "session_id"
	fieldDistance  = "vector_distance"
)

// memoryDoc is the stored form of a MemoryRecord
type memoryDoc struct {
	ID                 string             `firestore:"id"`
	SessionID          string             `firestore:"session_id"`
	UserID             string             `firestore:"user_id"`
	Conversation       string             `firestore:"conversation"`
	ConversationLength int                `firestore:"conversation_length"`
	Topics             []string           `firestore:"topics"`
	Timestamp          time.Time          `firestore:"timestamp"`
	Embedding          firestore.Vector32 `firestore:"embedding"`
	Distance           float64            `firestore:"vector_distance,omitempty"`
}

func (x *memoryDoc) record() *model.MemoryRecord {
	return &model.MemoryRecord{
		ID:                 model.MemoryID(x.ID),
		SessionID:          model.SessionID(x.SessionID),
		UserID:             x.UserID,
		Conversation:       x.Conversation,
		ConversationLength: x.ConversationLength,
		Topics:             x.Topics,
		Timestamp:          x.Timestamp,
		Embedding:          x.Embedding,
	}
}

// Firestore is a VectorIndex backed by Firestore vector search
type Firestore struct {
	client     *firestore.Client
	projectID  string
	databaseID string
	collection string
	dimension  int
	ownClient  bool
}

type FirestoreOption func(*Firestore)

// WithFirestoreClient shares an existing client instead of opening a new one
func WithFirestoreClient(client *firestore.Client) FirestoreOption {
	return func(x *Firestore) {
		x.client = client
	}
}

// NewFirestore creates a Firestore vector index on the given collection
func NewFirestore(ctx context.Context, projectID, databaseID, collection string, dimension int, opts ...FirestoreOption) (*Firestore, error) {
	if dimension <= 0 {
		return nil, goerr.New("dimension must be positive",
			goerr.V("dimension", dimension),
			goerr.T(model.ErrTagValidation))
	}

	x := &Firestore{
		projectID:  projectID,
		databaseID: databaseID,
		collection: collection,
		dimension:  dimension,
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.client == nil {
		client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore client",
				goerr.V("project_id", projectID),
				goerr.V("database_id", databaseID))
		}
		x.client = client
		x.ownClient = true
	}

	return x, nil
}

// Init requests the vector indexes used by Query: one for broad search and
// one composite with session_id for scoped search. Existing indexes are left
// as they are. Index builds run asynchronously on the Firestore side.
func (x *Firestore) Init(ctx context.Context) error {
	client, err := admin.NewFirestoreAdminClient(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to create firestore admin client", goerr.T(model.ErrTagUpstream))
	}
	defer client.Close()

	parent := fmt.Sprintf("projects/%s/databases/%s/collectionGroups/%s", x.projectID, x.databaseID, x.collection)
	vectorField := &adminpb.Index_IndexField{
		FieldPath: fieldEmbedding,
		ValueMode: &adminpb.Index_IndexField_VectorConfig_{
			VectorConfig: &adminpb.Index_IndexField_VectorConfig{
				Dimension: int32(x.dimension),
				Type: &adminpb.Index_IndexField_VectorConfig_Flat{
					Flat: &adminpb.Index_IndexField_VectorConfig_FlatIndex{},
				},
			},
		},
	}

	indexes := [][]*adminpb.Index_IndexField{
		{vectorField},
		{
			{
				FieldPath: fieldSessionID,
				ValueMode: &adminpb.Index_IndexField_Order_{Order: adminpb.Index_IndexField_ASCENDING},
			},
			vectorField,
		},
	}

	for _, fields := range indexes {
		_, err := client.CreateIndex(ctx, &adminpb.CreateIndexRequest{
			Parent: parent,
			Index: &adminpb.Index{
				QueryScope: adminpb.Index_COLLECTION,
				Fields:     fields,
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return goerr.Wrap(err, "failed to create vector index",
				goerr.V("parent", parent),
				goerr.T(model.ErrTagUpstream))
		}
	}

	return nil
}

func (x *Firestore) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	doc := &memoryDoc{
		ID:                 string(record.ID),
		SessionID:          string(record.SessionID),
		UserID:             record.UserID,
		Conversation:       record.Conversation,
		ConversationLength: record.ConversationLength,
		Topics:             record.Topics,
		Timestamp:          record.Timestamp,
		Embedding:          firestore.Vector32(record.Embedding),
	}

	if _, err := x.client.Collection(x.collection).Doc(doc.ID).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to upsert memory",
			goerr.V("memory_id", record.ID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (x *Firestore) Query(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	q := x.client.Collection(x.collection).Query
	if filter != nil && filter.SessionID != "" {
		q = q.Where(fieldSessionID, "==", string(filter.SessionID))
	}

	vq := q.FindNearest(fieldEmbedding, firestore.Vector32(vector), topK, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: fieldDistance})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var matches []*model.MemoryMatch
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to query memories", goerr.T(model.ErrTagUpstream))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory",
				goerr.V("doc_id", snap.Ref.ID),
				goerr.T(model.ErrTagParse))
		}

		// Firestore reports cosine distance, 1 - similarity
		matches = append(matches, &model.MemoryMatch{
			Score:  1 - doc.Distance,
			Record: doc.record(),
		})
	}

	return matches, nil
}

func (x *Firestore) Close() error {
	if x.ownClient {
		return x.client.Close()
	}
	return nil
}
