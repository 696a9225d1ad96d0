package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates an ID scoped by session with a random suffix, so
// records never overwrite each other within or across sessions.
func NewMemoryID(sessionID SessionID) MemoryID {
	return MemoryID(fmt.Sprintf("%s_%s", sessionID, uuid.New().String()))
}

// MemoryRecord is one embedded exchange stored in the vector index. Records
// are append-only.
type MemoryRecord struct {
	ID                 MemoryID  `firestore:"id"`
	SessionID          SessionID `firestore:"session_id"`
	UserID             string    `firestore:"user_id"`
	Conversation       string    `firestore:"conversation"`
	ConversationLength int       `firestore:"conversation_length"`
	Topics             []string  `firestore:"topics"`
	Timestamp          time.Time `firestore:"timestamp"`
	Embedding          []float32 `firestore:"-"`
}

// Validate checks invariants required before a record is stored
func (x *MemoryRecord) Validate() error {
	if x.ID == "" {
		return goerr.New("memory id is empty", goerr.T(ErrTagValidation))
	}
	if x.SessionID == "" {
		return goerr.New("session id is empty", goerr.V("memory_id", x.ID), goerr.T(ErrTagValidation))
	}
	if strings.TrimSpace(x.Conversation) == "" {
		return goerr.New("conversation is empty", goerr.V("memory_id", x.ID), goerr.T(ErrTagValidation))
	}
	if len(x.Embedding) == 0 {
		return goerr.New("embedding is empty", goerr.V("memory_id", x.ID), goerr.T(ErrTagValidation))
	}
	return nil
}

// MemoryFilter restricts a vector query by metadata. Empty fields are ignored.
type MemoryFilter struct {
	SessionID SessionID
}

// MemoryMatch is one vector query hit. Score is cosine similarity in [-1, 1].
type MemoryMatch struct {
	Score  float64
	Record *MemoryRecord
}

// Scope tells which search pass produced a snippet
type Scope string

const (
	ScopeCurrentSession       Scope = "Current session"
	ScopePreviousConversation Scope = "Previous conversation"
)

// Snippet is a retrieved memory decorated with its scope tag. Text keeps the
// untagged conversation so that duplicate detection never depends on the tag.
type Snippet struct {
	Scope Scope
	Text  string
}

func (x Snippet) String() string {
	return "[" + string(x.Scope) + "] " + x.Text
}

// Snippets converts a snippet list into the decorated string form
func Snippets(snippets []Snippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.String()
	}
	return out
}

// MemoryReport is the result of a retrieval probe for a session
type MemoryReport struct {
	SessionID SessionID `json:"session_id"`
	Query     string    `json:"query"`
	Memories  []string  `json:"memories"`
	Count     int       `json:"count"`
}
