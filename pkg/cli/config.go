package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/chunk"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	logLevel    string
	profilePath string

	// Repository
	backend  string
	dbPath   string
	project  string
	database string

	// LLM providers
	embeddingProvider  string
	completionProvider string
	geminiAPIKey       string
	geminiProject      string
	geminiLocation     string
	openaiAPIKey       string
	anthropicAPIKey    string
	ollamaHost         string
	embeddingModel     string
	generativeModel    string
	dimension          int64

	// Chunking and retrieval
	chunkSize    int64
	chunkOverlap int64
	topK         int64

	policyPath string
}

// profile is the optional YAML configuration file. Values from the profile
// fill in fields that flags and environment variables left unset, so the
// command line always wins.
type profile struct {
	Backend            string `yaml:"backend"`
	DBPath             string `yaml:"db_path"`
	Project            string `yaml:"project"`
	Database           string `yaml:"database"`
	EmbeddingProvider  string `yaml:"embedding_provider"`
	CompletionProvider string `yaml:"completion_provider"`
	GeminiLocation     string `yaml:"gemini_location"`
	OllamaHost         string `yaml:"ollama_host"`
	EmbeddingModel     string `yaml:"embedding_model"`
	GenerativeModel    string `yaml:"generative_model"`
	Dimension          int64  `yaml:"dimension"`
	ChunkSize          int64  `yaml:"chunk_size"`
	ChunkOverlap       int64  `yaml:"chunk_overlap"`
	TopK               int64  `yaml:"top_k"`
	Policy             string `yaml:"policy"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("KIOKU_CONFIG"),
			Destination: &cfg.profilePath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Storage backend (sqlite, firestore, memory)",
			Sources:     cli.EnvVars("KIOKU_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Path to the SQLite database file",
			Sources:     cli.EnvVars("KIOKU_DB_PATH"),
			Destination: &cfg.dbPath,
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
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to a Rego policy file or directory for store admission",
			Sources:     cli.EnvVars("KIOKU_POLICY"),
			Destination: &cfg.policyPath,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding vector dimension",
			Sources:     cli.EnvVars("KIOKU_DIMENSION"),
			Destination: &cfg.dimension,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai, ollama)",
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "completion-provider",
			Usage:       "Answer synthesis provider (gemini, openai, claude, none)",
			Sources:     cli.EnvVars("KIOKU_COMPLETION_PROVIDER"),
			Destination: &cfg.completionProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Vertex AI",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "ollama-host",
			Usage:       "Ollama server URL",
			Sources:     cli.EnvVars("OLLAMA_HOST"),
			Destination: &cfg.ollamaHost,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Override the provider's default embedding model",
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Override the provider's default generative model",
			Sources:     cli.EnvVars("KIOKU_GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
	}
}

// chunkFlags returns flags controlling how memories are split before embedding
func chunkFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "chunk-size",
			Usage:       "Maximum chunk length in characters",
			Sources:     cli.EnvVars("KIOKU_CHUNK_SIZE"),
			Destination: &cfg.chunkSize,
		},
		&cli.IntFlag{
			Name:        "chunk-overlap",
			Usage:       "Overlap between adjacent chunks in characters",
			Sources:     cli.EnvVars("KIOKU_CHUNK_OVERLAP"),
			Destination: &cfg.chunkOverlap,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Default number of chunks to retrieve per query",
			Sources:     cli.EnvVars("KIOKU_TOP_K"),
			Destination: &cfg.topK,
		},
	}
}

func allFlags(cfg *config) []cli.Flag {
	flags := globalFlags(cfg)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, chunkFlags(cfg)...)
	return flags
}

// applyProfile loads the YAML configuration file if one is given and fills
// in values that are still unset.
func (cfg *config) applyProfile() error {
	if cfg.profilePath == "" {
		return nil
	}

	content, err := os.ReadFile(cfg.profilePath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.profilePath))
	}

	var p profile
	if err := yaml.Unmarshal(content, &p); err != nil {
		return goerr.Wrap(err, "failed to parse YAML config", goerr.V("path", cfg.profilePath))
	}

	fillString(&cfg.backend, p.Backend)
	fillString(&cfg.dbPath, p.DBPath)
	fillString(&cfg.project, p.Project)
	fillString(&cfg.database, p.Database)
	fillString(&cfg.embeddingProvider, p.EmbeddingProvider)
	fillString(&cfg.completionProvider, p.CompletionProvider)
	fillString(&cfg.geminiLocation, p.GeminiLocation)
	fillString(&cfg.ollamaHost, p.OllamaHost)
	fillString(&cfg.embeddingModel, p.EmbeddingModel)
	fillString(&cfg.generativeModel, p.GenerativeModel)
	fillString(&cfg.policyPath, p.Policy)
	fillInt(&cfg.dimension, p.Dimension)
	fillInt(&cfg.chunkSize, p.ChunkSize)
	fillInt(&cfg.chunkOverlap, p.ChunkOverlap)
	fillInt(&cfg.topK, p.TopK)
	return nil
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillInt(dst *int64, v int64) {
	if *dst == 0 {
		*dst = v
	}
}

func (cfg *config) embeddingDimension() int {
	if cfg.dimension > 0 {
		return int(cfg.dimension)
	}
	return adapter.DefaultEmbeddingDimension
}

// newRepository creates the storage backend selected by configuration.
// SQLite under the user's home directory is the default.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	backend := cfg.backend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		path := cfg.dbPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, goerr.Wrap(err, "failed to resolve home directory for database path")
			}
			path = filepath.Join(home, ".kioku", "memories.db")
		}
		return repository.NewSQLite(path, cfg.embeddingDimension())

	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore backend")
		}
		database := cfg.database
		if database == "" {
			database = "(default)"
		}
		return repository.NewFirestore(ctx, cfg.project, database, cfg.embeddingDimension())

	case "memory":
		return repository.NewMemory(cfg.embeddingDimension()), nil

	default:
		return nil, goerr.New("unknown storage backend", goerr.V("backend", backend))
	}
}

// newEmbedder creates the embedding provider. Gemini is the default.
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	provider := cfg.embeddingProvider
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		if cfg.geminiAPIKey == "" && cfg.geminiProject == "" {
			return nil, goerr.New("gemini-api-key or gemini-project is required for the gemini provider")
		}
		opts := []adapter.GeminiOption{adapter.WithGeminiDimension(cfg.embeddingDimension())}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithGeminiEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewGemini(ctx, cfg.geminiAPIKey, cfg.geminiProject, cfg.geminiLocation, opts...)

	case "openai":
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required for the openai provider")
		}
		opts := []adapter.OpenAIOption{adapter.WithOpenAIDimension(cfg.embeddingDimension())}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOpenAIEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey, opts...)

	case "ollama":
		opts := []adapter.OllamaOption{adapter.WithOllamaDimension(cfg.embeddingDimension())}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOllamaModel(cfg.embeddingModel))
		}
		return adapter.NewOllama(cfg.ollamaHost, opts...)

	default:
		return nil, goerr.New("unknown embedding provider", goerr.V("provider", provider))
	}
}

// newCompleter creates the answer synthesis provider, or nil when synthesis
// is disabled. When no provider is named, the embedding provider is reused
// if it can generate text.
func (cfg *config) newCompleter(ctx context.Context) (adapter.Completer, error) {
	provider := cfg.completionProvider
	if provider == "" {
		switch cfg.embeddingProvider {
		case "", "gemini":
			provider = "gemini"
		case "openai":
			provider = "openai"
		default:
			return nil, nil
		}
	}

	switch provider {
	case "none":
		return nil, nil

	case "gemini":
		if cfg.geminiAPIKey == "" && cfg.geminiProject == "" {
			return nil, goerr.New("gemini-api-key or gemini-project is required for the gemini provider")
		}
		opts := []adapter.GeminiOption{}
		if cfg.generativeModel != "" {
			opts = append(opts, adapter.WithGeminiGenerativeModel(cfg.generativeModel))
		}
		return adapter.NewGemini(ctx, cfg.geminiAPIKey, cfg.geminiProject, cfg.geminiLocation, opts...)

	case "openai":
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required for the openai provider")
		}
		opts := []adapter.OpenAIOption{}
		if cfg.generativeModel != "" {
			opts = append(opts, adapter.WithOpenAIChatModel(cfg.generativeModel))
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey, opts...)

	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required for the claude provider")
		}
		opts := []adapter.ClaudeOption{}
		if cfg.generativeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.generativeModel))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, opts...)

	default:
		return nil, goerr.New("unknown completion provider", goerr.V("provider", provider))
	}
}

func (cfg *config) newSplitter() (*chunk.Splitter, error) {
	size := int(cfg.chunkSize)
	if size == 0 {
		size = chunk.DefaultSize
	}
	overlap := int(cfg.chunkOverlap)
	if overlap == 0 {
		// a tenth of the chunk size, which is the documented default
		// of 100 for the default size of 1000
		overlap = size / 10
	}
	return chunk.New(size, overlap)
}

// newStorage creates a Cloud Storage adapter for snapshot transfer
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newLocalUseCase wires only the repository, for commands that never reach
// an LLM provider (list, count, export, import). The returned closer
// releases the repository.
func (cfg *config) newLocalUseCase(ctx context.Context) (*memory.UseCase, func() error, error) {
	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))

	if err := cfg.applyProfile(); err != nil {
		return nil, nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	return memory.New(repo, nil), repo.Close, nil
}

// newUseCase wires the full memory stack from configuration. The returned
// closer releases the repository.
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, func() error, error) {
	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))

	if err := cfg.applyProfile(); err != nil {
		return nil, nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	completer, err := cfg.newCompleter(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	splitter, err := cfg.newSplitter()
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	storePolicy, err := policy.Load(ctx, cfg.policyPath)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	opts := []memory.Option{memory.WithSplitter(splitter)}
	if completer != nil {
		opts = append(opts, memory.WithCompleter(completer))
	}
	if storePolicy != nil {
		opts = append(opts, memory.WithStorePolicy(storePolicy))
	}
	if cfg.topK > 0 {
		opts = append(opts, memory.WithTopK(int(cfg.topK)))
	}

	return memory.New(repo, embedder, opts...), repo.Close, nil
}
