package memory

import (
	"context"
	"strings"

	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Retriever produces memory snippets for a query from two searches: one
// scoped to the current session and one across all sessions.
type Retriever struct {
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	cfg      Config
}

type RetrieverOption func(*Retriever)

func WithRetrieverConfig(cfg Config) RetrieverOption {
	return func(x *Retriever) {
		x.cfg = cfg
	}
}

func NewRetriever(embedder interfaces.Embedder, index interfaces.VectorIndex, opts ...RetrieverOption) *Retriever {
	x := &Retriever{
		embedder: embedder,
		index:    index,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Retrieve returns at most limit snippets, current session ones first. A
// non-positive limit uses the configured maximum. Failures are logged and
// yield an empty result.
func (x *Retriever) Retrieve(ctx context.Context, query string, sessionID model.SessionID, limit int) []model.Snippet {
	if limit <= 0 {
		limit = x.cfg.MaxMemories
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}

	logger := logging.From(ctx).With("session_id", sessionID)

	vector, err := x.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("failed to embed memory query", "error", err)
		return nil
	}

	var current, broad []*model.MemoryMatch
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		current, err = x.index.Query(egCtx, vector, x.cfg.CurrentSessionTopK, &model.MemoryFilter{SessionID: sessionID})
		return err
	})
	eg.Go(func() error {
		var err error
		broad, err = x.index.Query(egCtx, vector, limit, nil)
		return err
	})
	if err := eg.Wait(); err != nil {
		logger.Warn("failed to search memories", "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	var snippets []model.Snippet

	for _, m := range current {
		if m.Record == nil || m.Score <= x.cfg.CurrentSessionThreshold {
			continue
		}
		text := m.Record.Conversation
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		snippets = append(snippets, model.Snippet{Scope: model.ScopeCurrentSession, Text: text})
	}

	for _, m := range broad {
		if m.Record == nil || m.Score <= x.cfg.CrossSessionThreshold {
			continue
		}
		text := m.Record.Conversation
		if text == "" || m.Record.SessionID == sessionID {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		snippets = append(snippets, model.Snippet{Scope: model.ScopePreviousConversation, Text: text})
	}

	if len(snippets) > limit {
		snippets = snippets[:limit]
	}

	logger.Debug("memories retrieved", "count", len(snippets))
	return snippets
}
