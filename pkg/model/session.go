package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// UserID derives a stable pseudonymous user identifier from the session ID.
// The part before the first underscore is used when present, otherwise the
// first 8 characters.
func (x SessionID) UserID() string {
	s := string(x)
	if i := strings.Index(s, "_"); i >= 0 {
		return "user_" + s[:i]
	}
	if len(s) > 8 {
		s = s[:8]
	}
	return "user_" + s
}

// Session is a conversation session record in the document store
type Session struct {
	ID        SessionID `firestore:"id" bson:"id" json:"id"`
	UserID    string    `firestore:"user_id" bson:"user_id" json:"user_id"`
	CreatedAt time.Time `firestore:"created_at" bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at" bson:"updated_at" json:"updated_at"`
}

// NewSession creates a session with fresh identifiers
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(),
		UserID:    uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
