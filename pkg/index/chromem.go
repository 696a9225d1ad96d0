package index

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/philippgille/chromem-go"
)

const (
	metaSessionID          = "session_id"
	metaUserID             = "user_id"
	metaTimestamp          = "timestamp"
	metaConversationLength = "conversation_length"
	metaTopics             = "topics"
)

// Chromem is an embedded VectorIndex. Metadata is flattened into strings and
// topics are comma joined.
type Chromem struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewChromem opens a chromem database. An empty path keeps it in memory,
// otherwise it is persisted compressed under path.
func NewChromem(path, collection string) (*Chromem, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem db", goerr.V("path", path))
		}
	}

	return &Chromem{db: db, name: collection}, nil
}

func (x *Chromem) Init(ctx context.Context) error {
	if x.collection != nil {
		return nil
	}

	// Embeddings are always supplied by the caller so no embedding func is set
	c, err := x.db.GetOrCreateCollection(x.name, nil, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", x.name))
	}
	x.collection = c
	return nil
}

// Count returns the number of stored records
func (x *Chromem) Count() int {
	if x.collection == nil {
		return 0
	}
	return x.collection.Count()
}

func (x *Chromem) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	if x.collection == nil {
		return goerr.New("collection is not initialized", goerr.V("collection", x.name))
	}
	if err := record.Validate(); err != nil {
		return err
	}

	doc := chromem.Document{
		ID: string(record.ID),
		Metadata: map[string]string{
			metaSessionID:          string(record.SessionID),
			metaUserID:             record.UserID,
			metaTimestamp:          record.Timestamp.Format(time.RFC3339Nano),
			metaConversationLength: strconv.Itoa(record.ConversationLength),
			metaTopics:             strings.Join(record.Topics, ","),
		},
		Embedding: record.Embedding,
		Content:   record.Conversation,
	}

	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("memory_id", record.ID))
	}
	return nil
}

func (x *Chromem) Query(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
	if x.collection == nil {
		return nil, goerr.New("collection is not initialized", goerr.V("collection", x.name))
	}

	var where map[string]string
	if filter != nil && filter.SessionID != "" {
		where = map[string]string{metaSessionID: string(filter.SessionID)}
	}

	// chromem rejects nResults larger than the collection
	n := min(topK, x.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", x.name))
	}

	matches := make([]*model.MemoryMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, &model.MemoryMatch{
			Score:  float64(r.Similarity),
			Record: fromMetadata(r.ID, r.Content, r.Metadata, r.Embedding),
		})
	}
	return matches, nil
}

func fromMetadata(id, content string, meta map[string]string, embedding []float32) *model.MemoryRecord {
	record := &model.MemoryRecord{
		ID:           model.MemoryID(id),
		SessionID:    model.SessionID(meta[metaSessionID]),
		UserID:       meta[metaUserID],
		Conversation: content,
		Embedding:    embedding,
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta[metaTimestamp]); err == nil {
		record.Timestamp = ts
	}
	if n, err := strconv.Atoi(meta[metaConversationLength]); err == nil {
		record.ConversationLength = n
	}
	if topics := meta[metaTopics]; topics != "" {
		record.Topics = strings.Split(topics, ",")
	}
	return record
}

func (x *Chromem) Close() error {
	return nil
}
