package therapy_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hearth/pkg/index"
	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/repository"
	"github.com/m-mizutani/hearth/pkg/usecase/therapy"
	"github.com/m-mizutani/hearth/pkg/worker"
)

type fixture struct {
	uc    *therapy.UseCase
	llm   *scriptedModel
	repo  *repository.Badger
	index *index.Chromem
	pool  *worker.Pool
}

func setup(t *testing.T, opts ...therapy.Option) *fixture {
	repo, err := repository.NewBadger("")
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	idx, err := index.NewChromem("", "memories")
	gt.NoError(t, err)
	gt.NoError(t, idx.Init(context.Background()))

	pool := worker.New(2)
	llm := &scriptedModel{}
	opts = append([]therapy.Option{therapy.WithPool(pool)}, opts...)

	return &fixture{
		uc:    therapy.New(repo, llm, topicEmbedder{}, idx, opts...),
		llm:   llm,
		repo:  repo,
		index: idx,
		pool:  pool,
	}
}

func TestFirstTurnPersistsBothMessages(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	session, err := f.uc.CreateSession(ctx)
	gt.NoError(t, err)

	result, err := f.uc.HandleTurn(ctx, session.ID, "I've been having panic attacks before work presentations")
	gt.NoError(t, err)
	gt.Equal(t, result.SessionID, session.ID)
	gt.V(t, result.MessageID).NotEqual(model.MessageID(""))

	history, err := f.uc.History(ctx, session.ID)
	gt.NoError(t, err)
	gt.A(t, history).Length(2)
	gt.Equal(t, history[0].Role, model.RoleUser)
	gt.Equal(t, history[0].Content, "I've been having panic attacks before work presentations")
	gt.Equal(t, history[1].Role, model.RoleAssistant)
	gt.Equal(t, history[1].ID, result.MessageID)
	gt.Equal(t, history[1].Content, result.Response)
	gt.True(t, !history[1].Timestamp.Before(history[0].Timestamp))
}

func TestSecondTurnRecallsCurrentSession(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first, err := f.uc.HandleTurn(ctx, "", "I've been having panic attacks before work presentations")
	gt.NoError(t, err)
	f.pool.Wait()
	gt.Equal(t, f.index.Count(), 1)

	_, err = f.uc.HandleTurn(ctx, first.SessionID, "What did I tell you about my presentations?")
	gt.NoError(t, err)

	chats := f.llm.chatRequests()
	gt.A(t, chats).Length(2)
	gt.S(t, chats[0].System).NotContains("Relevant context from previous conversations")

	second := chats[1]
	gt.S(t, second.System).Contains("Relevant context from previous conversations:\n- [Current session] User: I've been having panic attacks before work presentations\nTherapist: ")
	gt.S(t, second.System).Contains("Please reference these previous conversations")

	// history of the second call is user, assistant, user
	gt.A(t, second.Messages).Length(3)
	gt.Equal(t, second.Messages[2].Content, "What did I tell you about my presentations?")
	gt.Equal(t, second.MaxTokens, 500)
	gt.Equal(t, second.Temperature, 0.7)

	report := f.uc.Memories(ctx, first.SessionID, "presentation nerves")
	gt.Equal(t, report.Count, len(report.Memories))
	gt.A(t, report.Memories).Longer(0)
	gt.True(t, strings.HasPrefix(report.Memories[0], "[Current session] "))
}

func TestTrivialTurnsAreNotStored(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r1, err := f.uc.HandleTurn(ctx, "", "ok")
	gt.NoError(t, err)
	_, err = f.uc.HandleTurn(ctx, r1.SessionID, "thanks")
	gt.NoError(t, err)
	f.pool.Wait()

	gt.Equal(t, f.index.Count(), 0)

	// "ok" is skipped by length alone, "thanks" reaches scoring and scores low
	var scoring int
	for _, req := range f.llm.requests {
		if req.System == "" {
			scoring++
		}
	}
	gt.Equal(t, scoring, 1)
}

func TestCrossSessionRecall(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	old, err := f.uc.HandleTurn(ctx, "", "My manager wants me to give a presentation next week")
	gt.NoError(t, err)
	f.pool.Wait()

	fresh, err := f.uc.HandleTurn(ctx, "", "The presentation is tomorrow and I can't sleep")
	gt.NoError(t, err)
	gt.V(t, fresh.SessionID).NotEqual(old.SessionID)

	chats := f.llm.chatRequests()
	gt.S(t, chats[1].System).Contains("- [Previous conversation] User: My manager wants me to give a presentation next week")
	gt.S(t, chats[1].System).NotContains("[Current session]")
}

func TestMintsSessionID(t *testing.T) {
	f := setup(t)
	result, err := f.uc.HandleTurn(context.Background(), "", "Hello there, I need to talk")
	gt.NoError(t, err)
	gt.V(t, result.SessionID).NotEqual(model.SessionID(""))
}

func TestRejectsBlankMessage(t *testing.T) {
	f := setup(t)
	_, err := f.uc.HandleTurn(context.Background(), "", "   ")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestModelFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.llm.chatErr = errors.New("model unavailable")

	_, err := f.uc.HandleTurn(ctx, "s-fail", "I have a lot on my mind today")
	gt.Error(t, err)
	f.pool.Wait()

	history, err := f.uc.History(ctx, "s-fail")
	gt.NoError(t, err)
	gt.A(t, history).Length(1)
	gt.Equal(t, history[0].Role, model.RoleUser)
	gt.Equal(t, f.index.Count(), 0)
}

func TestHistoryUnknownSession(t *testing.T) {
	f := setup(t)
	history, err := f.uc.History(context.Background(), "nobody")
	gt.NoError(t, err)
	gt.V(t, history).NotNil()
	gt.A(t, history).Length(0)
}

func TestMemoriesDefaultQuery(t *testing.T) {
	f := setup(t)
	report := f.uc.Memories(context.Background(), "s1", "")
	gt.Equal(t, report.Query, therapy.DefaultProbeQuery)
	gt.Equal(t, report.Count, 0)
	gt.Equal(t, report.SessionID, model.SessionID("s1"))
}

func TestBuildSystemPrompt(t *testing.T) {
	base := therapy.BuildSystemPromptForTest(nil)
	gt.S(t, base).NotContains("Relevant context")

	prompt := therapy.BuildSystemPromptForTest([]string{"[Current session] a", "[Previous conversation] b"})
	gt.True(t, strings.HasPrefix(prompt, base))
	gt.Equal(t, prompt[len(base):],
		"\n\n\nRelevant context from previous conversations:\n- [Current session] a\n- [Previous conversation] b"+
			"\n\nPlease reference these previous conversations when relevant to provide continuity and deeper understanding.")
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	var gotKey, gotType string
	var body []byte
	storage := &mockStorage{putFunc: func(ctx context.Context, key, contentType string, r io.Reader) error {
		gotKey, gotType = key, contentType
		var err error
		body, err = io.ReadAll(r)
		return err
	}}
	f := setup(t, therapy.WithStorage(storage))

	result, err := f.uc.HandleTurn(ctx, "", "Work has been overwhelming lately")
	gt.NoError(t, err)

	key, err := f.uc.Export(ctx, result.SessionID)
	gt.NoError(t, err)
	gt.Equal(t, key, "sessions/"+string(result.SessionID)+".json")
	gt.Equal(t, gotKey, key)
	gt.Equal(t, gotType, "application/json")

	var transcript model.Transcript
	gt.NoError(t, json.Unmarshal(body, &transcript))
	gt.Equal(t, transcript.SessionID, result.SessionID)
	gt.A(t, transcript.Messages).Length(2)
}

func TestExportWithoutStorage(t *testing.T) {
	f := setup(t)
	_, err := f.uc.Export(context.Background(), "s1")
	gt.Error(t, err)
}

func newDegradedUseCase(t *testing.T, embedder interfaces.Embedder, idx interfaces.VectorIndex) (*therapy.UseCase, *scriptedModel, *worker.Pool) {
	repo, err := repository.NewBadger("")
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	pool := worker.New(2)
	llm := &scriptedModel{}
	return therapy.New(repo, llm, embedder, idx, therapy.WithPool(pool)), llm, pool
}

func TestIndexQueryFailureKeepsTurn(t *testing.T) {
	ctx := context.Background()
	var upserts atomic.Int32
	idx := &mockIndex{
		queryFunc: func(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
			return nil, errors.New("index unavailable")
		},
		upsertFunc: func(ctx context.Context, record *model.MemoryRecord) error {
			upserts.Add(1)
			return nil
		},
	}
	uc, llm, pool := newDegradedUseCase(t, topicEmbedder{}, idx)

	first, err := uc.HandleTurn(ctx, "", "My presentation went badly and I keep replaying it")
	gt.NoError(t, err)
	pool.Wait()

	second, err := uc.HandleTurn(ctx, first.SessionID, "Can we talk about the presentation again?")
	gt.NoError(t, err)
	gt.V(t, second.Response).NotEqual("")
	pool.Wait()

	for _, req := range llm.chatRequests() {
		gt.S(t, req.System).NotContains("Relevant context from previous conversations")
	}
	gt.Equal(t, upserts.Load(), int32(2))

	history, err := uc.History(ctx, first.SessionID)
	gt.NoError(t, err)
	gt.A(t, history).Length(4)
}

func TestEmbeddingFailureKeepsTurn(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{
		queryFunc: func(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
			t.Error("query must not run without a vector")
			return nil, nil
		},
		upsertFunc: func(ctx context.Context, record *model.MemoryRecord) error {
			t.Error("upsert must not run without a vector")
			return nil
		},
	}
	uc, llm, pool := newDegradedUseCase(t, failingEmbedder{}, idx)

	result, err := uc.HandleTurn(ctx, "", "Work has been overwhelming and I can't switch off")
	gt.NoError(t, err)
	gt.V(t, result.Response).NotEqual("")
	pool.Wait()

	chats := llm.chatRequests()
	gt.A(t, chats).Length(1)
	gt.S(t, chats[0].System).NotContains("Relevant context from previous conversations")
}

func TestMemoryWriteFailureKeepsTurn(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{
		queryFunc: func(ctx context.Context, vector []float32, topK int, filter *model.MemoryFilter) ([]*model.MemoryMatch, error) {
			return nil, nil
		},
		upsertFunc: func(ctx context.Context, record *model.MemoryRecord) error {
			panic("index connection lost")
		},
	}
	uc, _, pool := newDegradedUseCase(t, topicEmbedder{}, idx)

	result, err := uc.HandleTurn(ctx, "", "I finally told my family how anxious I've been")
	gt.NoError(t, err)
	gt.V(t, result.Response).NotEqual("")
	pool.Wait()

	history, err := uc.History(ctx, result.SessionID)
	gt.NoError(t, err)
	gt.A(t, history).Length(2)
}

func TestStoredMemoryOwnedBySession(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	result, err := f.uc.HandleTurn(ctx, "", "The presentation is next week and I'm dreading it")
	gt.NoError(t, err)
	f.pool.Wait()

	vec, err := topicEmbedder{}.Embed(ctx, "presentation")
	gt.NoError(t, err)
	matches, err := f.index.Query(ctx, vec, 1, nil)
	gt.NoError(t, err)
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].Record.UserID, string(result.SessionID))
	gt.Equal(t, matches[0].Record.SessionID, result.SessionID)
}
