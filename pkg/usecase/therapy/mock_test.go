package therapy_test

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strings"
	"sync"

	"github.com/m-mizutani/hearth/pkg/model"
)

const dimension = 64

// topicEmbedder maps any text mentioning a presentation to one fixed vector
// and everything else to a hash selected axis, so unrelated texts are
// orthogonal.
type topicEmbedder struct{}

func (topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, dimension)
	if strings.Contains(strings.ToLower(text), "presentation") {
		vec[0] = 1
		return vec, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	vec[1+int(h.Sum32()%(dimension-1))] = 1
	return vec, nil
}

// scriptedModel answers scoring prompts with 2 for "thanks" and 8 otherwise,
// and chat prompts with a fixed reply. Every request is recorded.
type scriptedModel struct {
	mu       sync.Mutex
	requests []*model.Completion
	reply    string
	chatErr  error
}

func (m *scriptedModel) Complete(ctx context.Context, req *model.Completion) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if req.System == "" {
		prompt := req.Messages[0].Content
		if strings.Contains(prompt, `User: "thanks"`) {
			return "2", nil
		}
		return "8", nil
	}

	if m.chatErr != nil {
		return "", m.chatErr
	}
	if m.reply != "" {
		return m.reply, nil
	}
	return "That sounds really hard. What goes through your mind right before it starts?", nil
}

func (m *scriptedModel) chatRequests() []*model.Completion {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Completion
	for _, req := range m.requests {
		if req.System != "" {
			out = append(out, req)
		}
	}
	return out
}

type mockStorage struct {
	putFunc func(ctx context.Context, key, contentType string, r io.Reader) error
}

func (m *mockStorage) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	return m.putFunc(ctx, key, contentType, r)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding quota exceeded")
}

type mockIndex struct {
	queryFunc  func(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error)
	upsertFunc func(ctx context.Context, record *model.MemoryRecord) error
}

func (m *mockIndex) Init(ctx context.Context) error { return nil }

func (m *mockIndex) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	return m.upsertFunc(ctx, record)
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
	return m.queryFunc(ctx, vector, topK, filter)
}

func (m *mockIndex) Close() error { return nil }
