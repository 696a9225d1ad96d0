package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted chat message of a session
type Message struct {
	ID        MessageID `firestore:"id" bson:"id" json:"id"`
	SessionID SessionID `firestore:"session_id" bson:"session_id" json:"session_id"`
	Role      Role      `firestore:"role" bson:"role" json:"role"`
	Content   string    `firestore:"content" bson:"content" json:"content"`
	Timestamp time.Time `firestore:"timestamp" bson:"timestamp" json:"timestamp"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(sessionID SessionID, role Role, content string) *Message {
	return &Message{
		ID:        NewMessageID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// ChatResult is the outcome of one conversation turn
type ChatResult struct {
	Response  string    `json:"response"`
	SessionID SessionID `json:"session_id"`
	MessageID MessageID `json:"message_id"`
}

// Transcript is the exported history of one session
type Transcript struct {
	SessionID  SessionID  `json:"session_id"`
	Messages   []*Message `json:"messages"`
	ExportedAt time.Time  `json:"exported_at"`
}
