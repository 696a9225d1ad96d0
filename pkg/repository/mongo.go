package repository

import (
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements interfaces.Repository on MongoDB. Both collections live in
// one database and messages carry their session_id as a plain field.
type Mongo struct {
	client   *mongo.Client
	sessions *mongo.Collection
	messages *mongo.Collection
}

// NewMongo connects to MongoDB and creates the message lookup index
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to mongodb",
			goerr.V("database", database),
			goerr.T(model.ErrTagUpstream))
	}

	db := client.Database(database)
	repo := &Mongo{
		client:   client,
		sessions: db.Collection(collectionSessions),
		messages: db.Collection(collectionMessages),
	}

	_, err = repo.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, goerr.Wrap(err, "failed to create message index",
			goerr.V("database", database),
			goerr.T(model.ErrTagUpstream))
	}

	return repo, nil
}

func (r *Mongo) PutSession(ctx context.Context, session *model.Session) error {
	if _, err := r.sessions.InsertOne(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to insert session",
			goerr.V("session_id", session.ID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (r *Mongo) PutMessage(ctx context.Context, msg *model.Message) error {
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return goerr.Wrap(err, "failed to insert message",
			goerr.V("session_id", msg.SessionID),
			goerr.V("message_id", msg.ID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (r *Mongo) ListRecentMessages(ctx context.Context, sessionID model.SessionID, n int) ([]*model.Message, error) {
	msgs, err := r.find(ctx, sessionID, -1, n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent messages", goerr.V("session_id", sessionID))
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *Mongo) ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error) {
	msgs, err := r.find(ctx, sessionID, 1, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("session_id", sessionID))
	}
	return msgs, nil
}

func (r *Mongo) find(ctx context.Context, sessionID model.SessionID, order, limit int) ([]*model.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: order}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 0})

	cursor, err := r.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query messages", goerr.T(model.ErrTagUpstream))
	}
	defer cursor.Close(ctx)

	var msgs []*model.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, goerr.Wrap(err, "failed to decode messages", goerr.T(model.ErrTagParse))
	}
	return msgs, nil
}

func (r *Mongo) Close() error {
	return r.client.Disconnect(context.Background())
}
