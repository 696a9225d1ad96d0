package model

import "time"

// Exchange is one user message plus the assistant reply to it. UserID is
// optional and derived from SessionID when empty.
type Exchange struct {
	SessionID   SessionID
	UserID      string
	UserMessage string
	AIResponse  string
}

// Conversation renders the exchange in the literal stored form
func (x Exchange) Conversation() string {
	return "User: " + x.UserMessage + "\nTherapist: " + x.AIResponse
}

type Decision string

const (
	DecisionStore Decision = "store"
	DecisionSkip  Decision = "skip"
)

// Verdict is the retention decision for an exchange. Score is -1 when no
// score was obtained.
type Verdict struct {
	Decision Decision
	Score    int
	Reason   string
}

// Store reports whether the exchange should be persisted
func (x Verdict) Store() bool {
	return x.Decision == DecisionStore
}

// RetentionAudit is one row of the retention audit log
type RetentionAudit struct {
	SessionID   string    `bigquery:"session_id"`
	Decision    string    `bigquery:"decision"`
	Score       int64     `bigquery:"score"`
	Reason      string    `bigquery:"reason"`
	EvaluatedAt time.Time `bigquery:"evaluated_at"`
}

// CompletionMessage is a provider neutral chat message
type CompletionMessage struct {
	Role    Role
	Content string
}

// Completion is a single model call request
type Completion struct {
	System      string
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float64
}
