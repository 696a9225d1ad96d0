package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/model"
)

// Recorder embeds exchanges and writes them to the vector index
type Recorder struct {
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	cfg      Config
}

type RecorderOption func(*Recorder)

func WithRecorderConfig(cfg Config) RecorderOption {
	return func(x *Recorder) {
		x.cfg = cfg
	}
}

func NewRecorder(embedder interfaces.Embedder, index interfaces.VectorIndex, opts ...RecorderOption) *Recorder {
	x := &Recorder{
		embedder: embedder,
		index:    index,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Record stores the exchange as a new memory record and returns it
func (x *Recorder) Record(ctx context.Context, ex model.Exchange) (*model.MemoryRecord, error) {
	conversation := ex.Conversation()

	vector, err := x.embedder.Embed(ctx, conversation)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed exchange",
			goerr.V("session_id", ex.SessionID),
			goerr.T(model.ErrTagUpstream))
	}

	userID := ex.UserID
	if userID == "" {
		userID = ex.SessionID.UserID()
	}

	record := &model.MemoryRecord{
		ID:                 model.NewMemoryID(ex.SessionID),
		SessionID:          ex.SessionID,
		UserID:             userID,
		Conversation:       conversation,
		ConversationLength: len(conversation),
		Topics:             ExtractTopics(conversation, x.cfg.Topics, x.cfg.MaxTopics),
		Timestamp:          time.Now().UTC(),
		Embedding:          vector,
	}

	if err := x.index.Upsert(ctx, record); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert memory",
			goerr.V("memory_id", record.ID),
			goerr.V("session_id", ex.SessionID))
	}

	return record, nil
}
