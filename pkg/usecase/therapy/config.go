package therapy

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
)

// DefaultProbeQuery is used by Memories when no query is given
const DefaultProbeQuery = "anxiety stress work therapy"

// Config holds conversation generation settings
type Config struct {
	// HistorySize is how many recent messages are sent with each turn
	HistorySize int     `yaml:"history_size"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// MemoryLimit bounds the snippets added to a turn's system prompt
	MemoryLimit int `yaml:"memory_limit"`
	// ProbeLimit bounds the snippets returned by Memories
	ProbeLimit int `yaml:"probe_limit"`
	// TranscriptLimit bounds History and Export
	TranscriptLimit int `yaml:"transcript_limit"`
}

func DefaultConfig() Config {
	return Config{
		HistorySize:     10,
		MaxTokens:       500,
		Temperature:     0.7,
		MemoryLimit:     5,
		ProbeLimit:      10,
		TranscriptLimit: 100,
	}
}

func (x Config) Validate() error {
	if x.HistorySize <= 0 || x.MaxTokens <= 0 || x.MemoryLimit <= 0 || x.ProbeLimit <= 0 || x.TranscriptLimit <= 0 {
		return goerr.New("chat limits must be positive",
			goerr.V("history_size", x.HistorySize),
			goerr.V("max_tokens", x.MaxTokens),
			goerr.V("memory_limit", x.MemoryLimit),
			goerr.V("probe_limit", x.ProbeLimit),
			goerr.V("transcript_limit", x.TranscriptLimit),
			goerr.T(model.ErrTagValidation))
	}
	if x.Temperature < 0 || x.Temperature > 2 {
		return goerr.New("temperature must be in [0, 2]",
			goerr.V("temperature", x.Temperature),
			goerr.T(model.ErrTagValidation))
	}
	return nil
}
