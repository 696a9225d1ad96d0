package interfaces

import (
	"context"

	"github.com/m-mizutani/hearth/pkg/model"
)

// VectorIndex stores embedded memory records and answers nearest neighbor
// queries scored by cosine similarity, highest first.
type VectorIndex interface {
	// Init creates the index if absent. It is safe to call more than once.
	Init(ctx context.Context) error

	// Upsert stores the record, overwriting any record with the same ID
	Upsert(ctx context.Context, record *model.MemoryRecord) error

	// Query returns up to topK matches. A nil filter searches everything.
	Query(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error)

	Close() error
}

// AuditSink receives retention decisions for offline review
type AuditSink interface {
	Put(ctx context.Context, rows ...*model.RetentionAudit) error
}
