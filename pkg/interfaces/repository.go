package interfaces

import (
	"context"

	"github.com/m-mizutani/hearth/pkg/model"
)

// Repository defines the interface for conversation history persistence
type Repository interface {
	// PutSession saves a session record
	PutSession(ctx context.Context, session *model.Session) error

	// PutMessage appends a message to the session history
	PutMessage(ctx context.Context, msg *model.Message) error

	// ListRecentMessages returns the latest n messages of the session, oldest first
	ListRecentMessages(ctx context.Context, sessionID model.SessionID, n int) ([]*model.Message, error)

	// ListMessages returns up to limit messages of the session in ascending timestamp order
	ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error)

	Close() error
}
