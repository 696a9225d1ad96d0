package repository

import (
	"context"
	"errors"
	"slices"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"google.golang.org/api/iterator"
)

const (
	collectionSessions = "therapy_sessions"
	collectionMessages = "therapy_messages"
)

// Firestore implements interfaces.Repository. Messages live in a subcollection
// of their session document so that ordering by timestamp needs no composite
// index.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Client exposes the underlying client so the vector index can share it
func (r *Firestore) Client() *firestore.Client {
	return r.client
}

func (r *Firestore) messages(sessionID model.SessionID) *firestore.CollectionRef {
	return r.client.Collection(collectionSessions).Doc(string(sessionID)).Collection(collectionMessages)
}

func (r *Firestore) PutSession(ctx context.Context, session *model.Session) error {
	if _, err := r.client.Collection(collectionSessions).Doc(string(session.ID)).Set(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to put session",
			goerr.V("session_id", session.ID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (r *Firestore) PutMessage(ctx context.Context, msg *model.Message) error {
	if _, err := r.messages(msg.SessionID).Doc(string(msg.ID)).Set(ctx, msg); err != nil {
		return goerr.Wrap(err, "failed to put message",
			goerr.V("session_id", msg.SessionID),
			goerr.V("message_id", msg.ID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (r *Firestore) ListRecentMessages(ctx context.Context, sessionID model.SessionID, n int) ([]*model.Message, error) {
	q := r.messages(sessionID).OrderBy("timestamp", firestore.Desc).Limit(n)
	msgs, err := r.collect(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent messages", goerr.V("session_id", sessionID))
	}

	slices.Reverse(msgs)
	return msgs, nil
}

func (r *Firestore) ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error) {
	q := r.messages(sessionID).OrderBy("timestamp", firestore.Asc).Limit(limit)
	msgs, err := r.collect(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("session_id", sessionID))
	}
	return msgs, nil
}

func (r *Firestore) collect(ctx context.Context, q firestore.Query) ([]*model.Message, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var msgs []*model.Message
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.T(model.ErrTagUpstream))
		}

		var msg model.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message",
				goerr.V("doc_id", doc.Ref.ID),
				goerr.T(model.ErrTagParse))
		}
		msgs = append(msgs, &msg)
	}

	return msgs, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}
