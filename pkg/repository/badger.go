package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
)

// Badger implements interfaces.Repository on an embedded key value store.
// Message keys sort by session and timestamp. The session ID is hex encoded
// so no session prefix can match another session's keys:
//
//	message:<hex session_id>:<unix nano, 20 digits>:<message_id>
type Badger struct {
	db *badger.DB
}

// NewBadger opens the store at dir. An empty dir keeps everything in memory.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithInMemory(dir == "").
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open badger", goerr.V("dir", dir))
	}

	return &Badger{db: db}, nil
}

func sessionKey(id model.SessionID) []byte {
	return []byte("session:" + string(id))
}

func messagePrefix(id model.SessionID) []byte {
	return []byte("message:" + hex.EncodeToString([]byte(id)) + ":")
}

func messageKey(msg *model.Message) []byte {
	return fmt.Appendf(messagePrefix(msg.SessionID), "%020d:%s", msg.Timestamp.UnixNano(), msg.ID)
}

func (r *Badger) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal value", goerr.V("key", string(key)))
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

func (r *Badger) PutSession(ctx context.Context, session *model.Session) error {
	if err := r.put(sessionKey(session.ID), session); err != nil {
		return goerr.Wrap(err, "failed to put session", goerr.V("session_id", session.ID))
	}
	return nil
}

func (r *Badger) PutMessage(ctx context.Context, msg *model.Message) error {
	if err := r.put(messageKey(msg), msg); err != nil {
		return goerr.Wrap(err, "failed to put message",
			goerr.V("session_id", msg.SessionID),
			goerr.V("message_id", msg.ID))
	}
	return nil
}

func (r *Badger) ListRecentMessages(ctx context.Context, sessionID model.SessionID, n int) ([]*model.Message, error) {
	msgs, err := r.scan(sessionID, true, n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent messages", goerr.V("session_id", sessionID))
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *Badger) ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error) {
	msgs, err := r.scan(sessionID, false, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("session_id", sessionID))
	}
	return msgs, nil
}

func (r *Badger) scan(sessionID model.SessionID, reverse bool, limit int) ([]*model.Message, error) {
	prefix := messagePrefix(sessionID)
	seek := prefix
	if reverse {
		seek = append(slices.Clone(prefix), 0xff)
	}

	var msgs []*model.Message
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(msgs) < limit; it.Next() {
			var msg model.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return goerr.Wrap(err, "failed to decode message",
					goerr.V("key", string(it.Item().Key())),
					goerr.T(model.ErrTagParse))
			}
			msgs = append(msgs, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

func (r *Badger) Close() error {
	return r.db.Close()
}
