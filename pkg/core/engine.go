package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/embedder"
	openaiEmbedder "github.com/duomem/duomem-go/pkg/embedder/openai"
	simpleEmbedder "github.com/duomem/duomem-go/pkg/embedder/simple"
	"github.com/duomem/duomem-go/pkg/extraction"
	"github.com/duomem/duomem-go/pkg/llm"
	ollamaLLM "github.com/duomem/duomem-go/pkg/llm/ollama"
	openaiLLM "github.com/duomem/duomem-go/pkg/llm/openai"
	"github.com/duomem/duomem-go/pkg/storage"
	chromemStore "github.com/duomem/duomem-go/pkg/storage/chromem"
	graphStore "github.com/duomem/duomem-go/pkg/storage/graphsqlite"
	mysqlStore "github.com/duomem/duomem-go/pkg/storage/mysql"
	neo4jStore "github.com/duomem/duomem-go/pkg/storage/neo4jstore"
	postgresStore "github.com/duomem/duomem-go/pkg/storage/postgres"
	sqliteStore "github.com/duomem/duomem-go/pkg/storage/sqlite"
)

// Engine is the duomem dual-store memory engine.
//
// It coordinates the similarity store (source of truth) and the relation
// store (best-effort graph enrichment):
//   - Ingest extracts entities and relations, writes the fact to the
//     similarity store, then enriches the graph
//   - Search merges similarity hits with graph neighbors
//   - Update, Delete, Get, GetAll manage the fact lifecycle
//
// The engine is thread-safe and can be used concurrently from multiple
// goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	engine, _ := core.New(config)
//	defer engine.Close()
//
//	result, _ := engine.Ingest(ctx, "Sarah works with Alex",
//	    core.WithOwnerID("user_001"),
//	)
type Engine struct {
	// config contains the engine configuration.
	config *Config

	// similarity is the source-of-truth fact store.
	similarity storage.SimilarityStore

	// relations is the best-effort graph store (nil when disabled).
	relations storage.RelationStore

	// extractor proposes entities and relations (nil when disabled).
	extractor extraction.Extractor

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// llm is the underlying LLM provider, kept so Close can release it.
	llm llm.Provider

	// breaker guards relation store calls so a dead graph backend fails
	// fast instead of stalling every ingestion.
	breaker *gobreaker.CircuitBreaker

	// entityLocks serializes entity upserts per (owner, canonical name).
	entityLocks *keyLock

	// snowflakeNode generates unique fact IDs.
	snowflakeNode *snowflake.Node

	// logger writes structured diagnostics. Never writes to stdout.
	logger *zap.Logger

	// mu protects Close.
	mu     sync.Mutex
	closed bool
}

// Option configures an Engine beyond what Config carries, mainly for
// injecting pre-built components.
type Option func(*Engine)

// WithSimilarityStore injects a pre-built similarity store, overriding the
// provider named in the config.
func WithSimilarityStore(store storage.SimilarityStore) Option {
	return func(e *Engine) {
		e.similarity = store
	}
}

// WithRelationStore injects a pre-built relation store, overriding the
// provider named in the config.
func WithRelationStore(store storage.RelationStore) Option {
	return func(e *Engine) {
		e.relations = store
	}
}

// WithExtractor injects a pre-built extractor.
func WithExtractor(ex extraction.Extractor) Option {
	return func(e *Engine) {
		e.extractor = ex
	}
}

// WithEmbedderProvider injects a pre-built embedding provider.
func WithEmbedderProvider(p embedder.Provider) Option {
	return func(e *Engine) {
		e.embedder = p
	}
}

// WithLLMProvider injects a pre-built LLM provider.
func WithLLMProvider(p llm.Provider) Option {
	return func(e *Engine) {
		e.llm = p
	}
}

// WithLogger injects a logger. The default logs to stderr.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a new duomem engine.
//
// Components not injected through options are built from the config:
//   - Similarity store (sqlite, postgres, mysql, chromem)
//   - Relation store (sqlite, neo4j, none)
//   - LLM provider (openai, ollama, none) and the extractor on top of it
//   - Embedding provider (openai, simple)
//
// Returns a new Engine instance, or an error if initialization fails.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		entityLocks: newKeyLock(),
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, NewEngineError("New", KindInternal, err)
		}
		engine.logger = logger
	}

	if engine.similarity == nil {
		store, err := initSimilarityStore(cfg.SimilarityStore)
		if err != nil {
			return nil, err
		}
		engine.similarity = store
	}

	if engine.relations == nil {
		store, err := initRelationStore(cfg.RelationStore)
		if err != nil {
			return nil, err
		}
		engine.relations = store
	}

	if engine.embedder == nil {
		provider, err := initEmbedder(cfg.Embedder)
		if err != nil {
			return nil, err
		}
		engine.embedder = provider
	}

	if engine.extractor == nil && cfg.LLM.Provider != "" && cfg.LLM.Provider != "none" {
		if engine.llm == nil {
			provider, err := initLLM(cfg.LLM)
			if err != nil {
				return nil, err
			}
			engine.llm = provider
		}
		engine.extractor = extraction.NewLLMExtractor(engine.llm, cfg.Engine.ExtractionMinConfidence)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewEngineError("New", KindInternal, err)
	}
	engine.snowflakeNode = node

	engine.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relation-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			engine.logger.Warn("relation store circuit state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return engine, nil
}

// initSimilarityStore initializes the similarity store based on configuration.
func initSimilarityStore(cfg SimilarityStoreConfig) (storage.SimilarityStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    getString(cfg.Config, "db_path"),
			TableName: getString(cfg.Config, "table_name"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               getString(cfg.Config, "host"),
			Port:               getInt(cfg.Config, "port"),
			User:               getString(cfg.Config, "user"),
			Password:           getString(cfg.Config, "password"),
			DBName:             getString(cfg.Config, "db_name"),
			TableName:          getString(cfg.Config, "table_name"),
			EmbeddingModelDims: getInt(cfg.Config, "embedding_model_dims"),
			SSLMode:            getString(cfg.Config, "ssl_mode"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:      getString(cfg.Config, "host"),
			Port:      getInt(cfg.Config, "port"),
			User:      getString(cfg.Config, "user"),
			Password:  getString(cfg.Config, "password"),
			DBName:    getString(cfg.Config, "db_name"),
			TableName: getString(cfg.Config, "table_name"),
		})
	case "chromem":
		return chromemStore.NewClient()
	default:
		return nil, NewEngineError("initSimilarityStore", KindValidationError,
			fmt.Errorf("%w: unsupported similarity store provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// initRelationStore initializes the relation store based on configuration.
// The "none" provider returns nil, which disables graph enrichment.
func initRelationStore(cfg RelationStoreConfig) (storage.RelationStore, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "sqlite":
		return graphStore.NewClient(&graphStore.Config{
			DBPath: getString(cfg.Config, "db_path"),
		})
	case "neo4j":
		return neo4jStore.NewClient(context.Background(), &neo4jStore.Config{
			URI:      getString(cfg.Config, "uri"),
			Username: getString(cfg.Config, "username"),
			Password: getString(cfg.Config, "password"),
		})
	default:
		return nil, NewEngineError("initRelationStore", KindValidationError,
			fmt.Errorf("%w: unsupported relation store provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// initLLM initializes the LLM provider based on configuration.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, NewEngineError("initLLM", KindValidationError,
			fmt.Errorf("%w: unsupported LLM provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder initializes the embedding provider based on configuration.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "simple":
		return simpleEmbedder.New(cfg.Dimensions), nil
	default:
		return nil, NewEngineError("initEmbedder", KindValidationError,
			fmt.Errorf("%w: unsupported embedding provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// GraphEnabled reports whether a relation store is configured.
func (e *Engine) GraphEnabled() bool {
	return e.relations != nil
}

// Logger returns the engine's logger for transports that want to share it.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// relationCall runs fn against the relation store through the circuit
// breaker with the store timeout applied.
func (e *Engine) relationCall(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.config.Engine.StoreTimeout)
	defer cancel()

	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, fn(callCtx)
	})
	return err
}

// storeCtx derives a context bounded by the store timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Engine.StoreTimeout)
}

// Close closes the engine and releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.similarity != nil {
		if err := e.similarity.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.relations != nil {
		if err := e.relations.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.llm != nil {
		if err := e.llm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_ = e.logger.Sync()

	return firstErr
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getInt(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
