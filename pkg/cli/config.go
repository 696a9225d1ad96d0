package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/adapter"
	"github.com/m-mizutani/hearth/pkg/index"
	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/policy"
	"github.com/m-mizutani/hearth/pkg/repository"
	"github.com/m-mizutani/hearth/pkg/usecase/memory"
	"github.com/m-mizutani/hearth/pkg/usecase/therapy"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
	"github.com/m-mizutani/hearth/pkg/worker"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Document store
	store         string
	project       string
	database      string
	mongoURI      string
	mongoDatabase string
	badgerDir     string

	// Vector index
	index              string
	indexCollection    string
	chromemPath        string
	embeddingDimension int64
	embeddingCacheSize int64

	// Language models
	llmProvider       string
	embeddingProvider string
	geminiProject     string
	geminiLocation    string
	geminiAPIKey      string
	geminiModel       string
	openaiAPIKey      string
	openaiBaseURL     string
	openaiModel       string
	anthropicAPIKey   string
	claudeModel       string

	// Memory pipeline
	memoryConfig string
	policyDir    string
	auditDataset string
	auditTable   string
	workers      int64

	// Transcript export
	exportBucket string
}

// tuning is the layout of the --memory-config file
type tuning struct {
	Memory memory.Config  `yaml:"memory"`
	Chat   therapy.Config `yaml:"chat"`
}

// logFlags returns flags for logger configuration with destination config
func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("HEARTH_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("HEARTH_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// storeFlags returns flags for the document store with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Conversation store (firestore, mongo, badger)",
			Value:       "firestore",
			Sources:     cli.EnvVars("HEARTH_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "mongo-uri",
			Usage:       "MongoDB connection URI",
			Sources:     cli.EnvVars("MONGO_URL"),
			Destination: &cfg.mongoURI,
		},
		&cli.StringFlag{
			Name:        "mongo-database",
			Usage:       "MongoDB database name",
			Value:       "hearth",
			Sources:     cli.EnvVars("DB_NAME"),
			Destination: &cfg.mongoDatabase,
		},
		&cli.StringFlag{
			Name:        "badger-dir",
			Usage:       "Badger data directory, in-memory when empty",
			Sources:     cli.EnvVars("HEARTH_BADGER_DIR"),
			Destination: &cfg.badgerDir,
		},
	}
}

// indexFlags returns flags for the vector index with destination config
func indexFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Vector index (firestore, chromem)",
			Value:       "firestore",
			Sources:     cli.EnvVars("HEARTH_INDEX"),
			Destination: &cfg.index,
		},
		&cli.StringFlag{
			Name:        "index-collection",
			Usage:       "Collection holding memory vectors",
			Value:       "memories",
			Sources:     cli.EnvVars("HEARTH_INDEX_COLLECTION"),
			Destination: &cfg.indexCollection,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory persisting the chromem index, in-memory when empty",
			Sources:     cli.EnvVars("HEARTH_CHROMEM_PATH"),
			Destination: &cfg.chromemPath,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Sources:     cli.EnvVars("HEARTH_EMBEDDING_DIMENSION"),
			Destination: &cfg.embeddingDimension,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Bytes of query embeddings kept in memory, 0 disables the cache",
			Value:       16 << 20,
			Sources:     cli.EnvVars("HEARTH_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.embeddingCacheSize,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Chat model provider (gemini, openai, claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("HEARTH_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai)",
			Value:       "gemini",
			Sources:     cli.EnvVars("HEARTH_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key, used instead of Vertex AI when set",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini chat model",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "OpenAI compatible API base URL",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI chat model",
			Value:       "gpt-4o-mini",
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude chat model",
			Value:       "claude-sonnet-4-5",
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
	}
}

// memoryFlags returns flags for the memory pipeline with destination config
func memoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "memory-config",
			Usage:       "YAML file overriding memory and chat tuning",
			Sources:     cli.EnvVars("HEARTH_MEMORY_CONFIG"),
			Destination: &cfg.memoryConfig,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego retention policies (package retention)",
			Sources:     cli.EnvVars("HEARTH_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "audit-dataset",
			Usage:       "BigQuery dataset for retention audit rows",
			Sources:     cli.EnvVars("HEARTH_AUDIT_DATASET"),
			Destination: &cfg.auditDataset,
		},
		&cli.StringFlag{
			Name:        "audit-table",
			Usage:       "BigQuery table for retention audit rows",
			Value:       "retention_audit",
			Sources:     cli.EnvVars("HEARTH_AUDIT_TABLE"),
			Destination: &cfg.auditTable,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Concurrent background memory jobs",
			Value:       4,
			Sources:     cli.EnvVars("HEARTH_WORKERS"),
			Destination: &cfg.workers,
		},
	}
}

// exportFlags returns flags for transcript export with destination config
func exportFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "export-bucket",
			Usage:       "Cloud Storage bucket receiving exported transcripts",
			Sources:     cli.EnvVars("HEARTH_EXPORT_BUCKET"),
			Destination: &cfg.exportBucket,
		},
	}
}

// allFlags returns every flag needed to build the use case
func allFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, logFlags(cfg)...)
	flags = append(flags, storeFlags(cfg)...)
	flags = append(flags, indexFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, memoryFlags(cfg)...)
	flags = append(flags, exportFlags(cfg)...)
	return flags
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) context.Context {
	logger := logging.New(cfg.logLevel, w, logging.WithFormat(logging.ParseFormat(cfg.logFormat)))
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (interfaces.Repository, error) {
	switch cfg.store {
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		return repository.NewFirestore(ctx, cfg.project, cfg.database)

	case "mongo":
		if cfg.mongoURI == "" {
			return nil, goerr.New("mongo-uri is required")
		}
		return repository.NewMongo(ctx, cfg.mongoURI, cfg.mongoDatabase)

	case "badger":
		return repository.NewBadger(cfg.badgerDir)

	default:
		return nil, goerr.New("unknown store", goerr.V("store", cfg.store))
	}
}

// newIndex creates the vector index and makes sure it exists. A Firestore
// repository shares its client with a Firestore index.
func (cfg *config) newIndex(ctx context.Context, repo interfaces.Repository) (interfaces.VectorIndex, error) {
	var idx interfaces.VectorIndex

	switch cfg.index {
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		var opts []index.FirestoreOption
		if fs, ok := repo.(*repository.Firestore); ok {
			opts = append(opts, index.WithFirestoreClient(fs.Client()))
		}
		x, err := index.NewFirestore(ctx, cfg.project, cfg.database, cfg.indexCollection, int(cfg.embeddingDimension), opts...)
		if err != nil {
			return nil, err
		}
		idx = x

	case "chromem":
		x, err := index.NewChromem(cfg.chromemPath, cfg.indexCollection)
		if err != nil {
			return nil, err
		}
		idx = x

	default:
		return nil, goerr.New("unknown index", goerr.V("index", cfg.index))
	}

	if err := idx.Init(ctx); err != nil {
		_ = idx.Close()
		return nil, goerr.Wrap(err, "failed to initialize vector index", goerr.V("index", cfg.index))
	}
	return idx, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiAPIKey == "" {
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project or gemini-api-key is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
	}

	opts := []adapter.GeminiOption{
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingDimension(int(cfg.embeddingDimension)),
	}
	if cfg.geminiAPIKey != "" {
		opts = append(opts, adapter.WithGeminiAPIKey(cfg.geminiAPIKey))
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newOpenAI creates a new OpenAI adapter instance
func (cfg *config) newOpenAI() (*adapter.OpenAIClient, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}

	opts := []adapter.OpenAIOption{
		adapter.WithOpenAIChatModel(cfg.openaiModel),
		adapter.WithOpenAIEmbeddingDimension(int(cfg.embeddingDimension)),
	}
	if cfg.openaiBaseURL != "" {
		opts = append(opts, adapter.WithOpenAIBaseURL(cfg.openaiBaseURL))
	}
	return adapter.NewOpenAI(cfg.openaiAPIKey, opts...)
}

// newChatModel creates the configured chat model
func (cfg *config) newChatModel(ctx context.Context) (interfaces.ChatModel, error) {
	switch cfg.llmProvider {
	case "gemini":
		return cfg.newGemini(ctx)
	case "openai":
		return cfg.newOpenAI()
	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel))
	default:
		return nil, goerr.New("unknown llm provider", goerr.V("provider", cfg.llmProvider))
	}
}

// newEmbedder creates the configured embedder, wrapped by a cache when enabled
func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, func(), error) {
	var embedder interfaces.Embedder
	switch cfg.embeddingProvider {
	case "gemini":
		x, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, nil, err
		}
		embedder = x
	case "openai":
		x, err := cfg.newOpenAI()
		if err != nil {
			return nil, nil, err
		}
		embedder = x
	default:
		return nil, nil, goerr.New("unknown embedding provider", goerr.V("provider", cfg.embeddingProvider))
	}

	if cfg.embeddingCacheSize <= 0 {
		return embedder, func() {}, nil
	}

	cached, err := adapter.NewCachedEmbedder(embedder, cfg.embeddingCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// loadTuning reads the memory config file over the defaults
func (cfg *config) loadTuning() (*tuning, error) {
	t := &tuning{
		Memory: memory.DefaultConfig(),
		Chat:   therapy.DefaultConfig(),
	}

	if cfg.memoryConfig != "" {
		f, err := os.Open(cfg.memoryConfig)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open memory config", goerr.V("path", cfg.memoryConfig))
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
			return nil, goerr.Wrap(err, "failed to parse memory config", goerr.V("path", cfg.memoryConfig))
		}
	}

	if err := t.Memory.Validate(); err != nil {
		return nil, err
	}
	if err := t.Chat.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// corsOrigins splits a comma separated origin list
func corsOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// deps holds the long-lived clients of one process
type deps struct {
	uc      *therapy.UseCase
	pool    *worker.Pool
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// newDeps builds the use case and everything it depends on. opts are
// appended after the configured ones.
func (cfg *config) newDeps(ctx context.Context, opts ...therapy.Option) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	t, err := cfg.loadTuning()
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	d.closers = append(d.closers, func() { _ = repo.Close() })

	idx, err := cfg.newIndex(ctx, repo)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() { _ = idx.Close() })

	llm, err := cfg.newChatModel(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat model")
	}

	embedder, closeEmbedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedder")
	}
	d.closers = append(d.closers, closeEmbedder)

	d.pool = worker.New(int(cfg.workers))
	ucOpts := []therapy.Option{
		therapy.WithPool(d.pool),
		therapy.WithConfig(t.Chat),
		therapy.WithMemoryConfig(t.Memory),
	}

	if cfg.policyDir != "" {
		p, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ucOpts = append(ucOpts, therapy.WithRetentionPolicy(p))
		}
	}

	if cfg.auditDataset != "" {
		audit, err := adapter.NewBigQueryAudit(ctx, cfg.project, cfg.auditDataset, cfg.auditTable)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = audit.Close() })
		if err := audit.Init(ctx); err != nil {
			return nil, err
		}
		ucOpts = append(ucOpts, therapy.WithAuditSink(audit))
	}

	if cfg.exportBucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.exportBucket)
		if err != nil {
			return nil, err
		}
		ucOpts = append(ucOpts, therapy.WithStorage(storage))
	}

	ucOpts = append(ucOpts, opts...)
	d.uc = therapy.New(repo, llm, embedder, idx, ucOpts...)

	ok = true
	return d, nil
}
