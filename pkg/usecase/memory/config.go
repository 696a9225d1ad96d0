package memory

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
)

// Config holds the tuning constants of the memory pipeline. Values are fixed
// for the process lifetime.
type Config struct {
	// CurrentSessionThreshold is the minimum similarity, exclusive, for
	// memories of the session being served
	CurrentSessionThreshold float64 `yaml:"current_session_threshold"`
	// CrossSessionThreshold is the minimum similarity, exclusive, for
	// memories of other sessions
	CrossSessionThreshold float64 `yaml:"cross_session_threshold"`
	CurrentSessionTopK    int     `yaml:"current_session_top_k"`
	MaxMemories           int     `yaml:"max_memories"`

	ScoreThreshold   int     `yaml:"score_threshold"`
	ScoreMaxTokens   int     `yaml:"score_max_tokens"`
	ScoreTemperature float64 `yaml:"score_temperature"`
	MinUserChars     int     `yaml:"min_user_chars"`
	MinResponseChars int     `yaml:"min_response_chars"`

	Topics    []string `yaml:"topics"`
	MaxTopics int      `yaml:"max_topics"`
}

// DefaultTopics is the keyword vocabulary used to tag stored memories
var DefaultTopics = []string{
	"anxiety", "depression", "stress", "work", "job", "relationship", "family",
	"sleep", "panic", "worry", "fear", "angry", "sad", "overwhelmed", "therapy",
	"counseling", "medication", "interview", "presentation", "public speaking",
	"social", "friends", "marriage", "divorce", "grief", "loss", "trauma",
}

func DefaultConfig() Config {
	return Config{
		CurrentSessionThreshold: 0.6,
		CrossSessionThreshold:   0.5,
		CurrentSessionTopK:      3,
		MaxMemories:             5,
		ScoreThreshold:          6,
		ScoreMaxTokens:          10,
		ScoreTemperature:        0.1,
		MinUserChars:            5,
		MinResponseChars:        10,
		Topics:                  DefaultTopics,
		MaxTopics:               5,
	}
}

// Validate rejects settings that would break the pipeline
func (x Config) Validate() error {
	if x.CurrentSessionThreshold < -1 || x.CurrentSessionThreshold > 1 {
		return goerr.New("current_session_threshold must be in [-1, 1]",
			goerr.V("value", x.CurrentSessionThreshold), goerr.T(model.ErrTagValidation))
	}
	if x.CrossSessionThreshold < -1 || x.CrossSessionThreshold > 1 {
		return goerr.New("cross_session_threshold must be in [-1, 1]",
			goerr.V("value", x.CrossSessionThreshold), goerr.T(model.ErrTagValidation))
	}
	if x.CurrentSessionTopK <= 0 || x.MaxMemories <= 0 {
		return goerr.New("search sizes must be positive",
			goerr.V("current_session_top_k", x.CurrentSessionTopK),
			goerr.V("max_memories", x.MaxMemories),
			goerr.T(model.ErrTagValidation))
	}
	if x.ScoreThreshold < 0 || x.ScoreThreshold > 10 {
		return goerr.New("score_threshold must be in [0, 10]",
			goerr.V("value", x.ScoreThreshold), goerr.T(model.ErrTagValidation))
	}
	if x.ScoreMaxTokens <= 0 {
		return goerr.New("score_max_tokens must be positive",
			goerr.V("value", x.ScoreMaxTokens), goerr.T(model.ErrTagValidation))
	}
	return nil
}
