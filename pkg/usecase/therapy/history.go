package therapy

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
)

// History returns the stored messages of a session in chronological order.
// Unknown sessions yield an empty list.
func (uc *UseCase) History(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error) {
	msgs, err := uc.repo.ListMessages(ctx, sessionID, uc.cfg.TranscriptLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("session_id", sessionID))
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

// Memories runs the retriever as a turn would and reports what it found
func (uc *UseCase) Memories(ctx context.Context, sessionID model.SessionID, query string) *model.MemoryReport {
	if query == "" {
		query = DefaultProbeQuery
	}

	memories := model.Snippets(uc.retriever.Retrieve(ctx, query, sessionID, uc.cfg.ProbeLimit))
	return &model.MemoryReport{
		SessionID: sessionID,
		Query:     query,
		Memories:  memories,
		Count:     len(memories),
	}
}

// Export writes the session transcript as JSON to sessions/<id>.json and
// returns the object key
func (uc *UseCase) Export(ctx context.Context, sessionID model.SessionID) (string, error) {
	if uc.storage == nil {
		return "", goerr.New("export storage is not configured", goerr.T(model.ErrTagValidation))
	}

	msgs, err := uc.History(ctx, sessionID)
	if err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(&model.Transcript{
		SessionID:  sessionID,
		Messages:   msgs,
		ExportedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal transcript", goerr.V("session_id", sessionID))
	}

	key := "sessions/" + string(sessionID) + ".json"
	if err := uc.storage.Put(ctx, key, "application/json", bytes.NewReader(raw)); err != nil {
		return "", goerr.Wrap(err, "failed to export transcript", goerr.V("session_id", sessionID))
	}

	logging.From(ctx).Info("transcript exported", "session_id", sessionID, "key", key, "messages", len(msgs))
	return key, nil
}
