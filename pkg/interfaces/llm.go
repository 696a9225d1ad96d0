package interfaces

import (
	"context"

	"github.com/m-mizutani/hearth/pkg/model"
)

// ChatModel issues one completion call and returns the reply text
type ChatModel interface {
	Complete(ctx context.Context, req *model.Completion) (string, error)
}

// Embedder turns non-empty text into a fixed dimension dense vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
