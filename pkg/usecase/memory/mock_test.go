package memory_test

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/hearth/pkg/model"
)

type mockChatModel struct {
	completeFunc func(ctx context.Context, req *model.Completion) (string, error)
	calls        atomic.Int32
}

func (m *mockChatModel) Complete(ctx context.Context, req *model.Completion) (string, error) {
	m.calls.Add(1)
	return m.completeFunc(ctx, req)
}

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFunc(ctx, text)
}

type mockIndex struct {
	upsertFunc func(ctx context.Context, record *model.MemoryRecord) error
	queryFunc  func(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error)
}

func (m *mockIndex) Init(ctx context.Context) error { return nil }

func (m *mockIndex) Upsert(ctx context.Context, record *model.MemoryRecord) error {
	return m.upsertFunc(ctx, record)
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
	return m.queryFunc(ctx, vector, topK, filter)
}

func (m *mockIndex) Close() error { return nil }

type mockPolicy struct {
	denyFunc func(ctx context.Context, ex model.Exchange) ([]string, error)
}

func (m *mockPolicy) Deny(ctx context.Context, ex model.Exchange) ([]string, error) {
	return m.denyFunc(ctx, ex)
}

type mockAudit struct {
	rows []*model.RetentionAudit
}

func (m *mockAudit) Put(ctx context.Context, rows ...*model.RetentionAudit) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func match(score float64, sessionID model.SessionID, text string) *model.MemoryMatch {
	return &model.MemoryMatch{
		Score: score,
		Record: &model.MemoryRecord{
			ID:           model.NewMemoryID(sessionID),
			SessionID:    sessionID,
			Conversation: text,
		},
	}
}
