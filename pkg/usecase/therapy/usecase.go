package therapy

import (
	_ "embed"
	"strings"

	"github.com/m-mizutani/hearth/pkg/adapter"
	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/usecase/memory"
	"github.com/m-mizutani/hearth/pkg/worker"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPrompt = strings.TrimSpace(systemPromptRaw)

// UseCase runs conversation turns and the memory pipeline around them
type UseCase struct {
	repo interfaces.Repository
	llm  interfaces.ChatModel

	retriever *memory.Retriever
	evaluator *memory.Evaluator
	recorder  *memory.Recorder
	pool      *worker.Pool
	storage   adapter.Storage

	cfg       Config
	memoryCfg memory.Config
	policy    interfaces.RetentionPolicy
	audit     interfaces.AuditSink
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithPool sets the pool running memory storage jobs
func WithPool(pool *worker.Pool) Option {
	return func(uc *UseCase) {
		uc.pool = pool
	}
}

// WithStorage enables transcript export
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

func WithConfig(cfg Config) Option {
	return func(uc *UseCase) {
		uc.cfg = cfg
	}
}

func WithMemoryConfig(cfg memory.Config) Option {
	return func(uc *UseCase) {
		uc.memoryCfg = cfg
	}
}

func WithRetentionPolicy(policy interfaces.RetentionPolicy) Option {
	return func(uc *UseCase) {
		uc.policy = policy
	}
}

func WithAuditSink(sink interfaces.AuditSink) Option {
	return func(uc *UseCase) {
		uc.audit = sink
	}
}

// New creates a new therapy UseCase instance
func New(
	repo interfaces.Repository,
	llm interfaces.ChatModel,
	embedder interfaces.Embedder,
	index interfaces.VectorIndex,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		repo:      repo,
		llm:       llm,
		cfg:       DefaultConfig(),
		memoryCfg: memory.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.pool == nil {
		uc.pool = worker.New(4)
	}

	evalOpts := []memory.EvaluatorOption{memory.WithEvaluatorConfig(uc.memoryCfg)}
	if uc.policy != nil {
		evalOpts = append(evalOpts, memory.WithRetentionPolicy(uc.policy))
	}
	if uc.audit != nil {
		evalOpts = append(evalOpts, memory.WithAuditSink(uc.audit))
	}

	uc.retriever = memory.NewRetriever(embedder, index, memory.WithRetrieverConfig(uc.memoryCfg))
	uc.evaluator = memory.NewEvaluator(llm, evalOpts...)
	uc.recorder = memory.NewRecorder(embedder, index, memory.WithRecorderConfig(uc.memoryCfg))

	return uc
}

// buildSystemPrompt appends the retrieved memories, if any, to the base prompt
func buildSystemPrompt(memories []string) string {
	if len(memories) == 0 {
		return systemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n\nRelevant context from previous conversations:\n")
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(m)
	}
	b.WriteString("\n\nPlease reference these previous conversations when relevant to provide continuity and deeper understanding.")
	return b.String()
}

// BuildSystemPromptForTest exposes buildSystemPrompt for tests
func BuildSystemPromptForTest(memories []string) string {
	return buildSystemPrompt(memories)
}
