package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a duomem engine.
//
// It includes settings for:
//   - LLM provider (for entity and relation extraction)
//   - Embedding provider (for vector generation)
//   - Similarity store (the source of truth for facts)
//   - Relation store (best-effort graph enrichment)
//   - Engine behavior (timeouts, traversal depth, thresholds)
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider: "simple",
//	    },
//	    SimilarityStore: core.SimilarityStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./facts.db",
//	        },
//	    },
//	    RelationStore: core.RelationStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./graph.db",
//	        },
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// SimilarityStore contains similarity store configuration.
	SimilarityStore SimilarityStoreConfig `json:"similarity_store"`

	// RelationStore contains relation store configuration.
	RelationStore RelationStoreConfig `json:"relation_store"`

	// Engine contains tunable engine behavior.
	Engine EngineConfig `json:"engine"`

	// HTTP contains the optional HTTP listener configuration.
	HTTP HTTPConfig `json:"http"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, ollama, none. OpenAI-compatible gateways are
// reached by setting BaseURL on the openai provider. The "none" provider
// disables extraction entirely; facts are stored without graph enrichment.
type LLMConfig struct {
	// Provider is the LLM provider name (openai, ollama, none).
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o-mini").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, simple. The simple provider is a local
// deterministic embedder that needs no network access.
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, simple).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of embedding vectors.
	Dimensions int `json:"dimensions,omitempty"`
}

// SimilarityStoreConfig contains configuration for the similarity store.
//
// Supported providers: sqlite, postgres, mysql, chromem.
type SimilarityStoreConfig struct {
	// Provider is the similarity store provider name.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, embedding_model_dims, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	// Chromem needs no configuration.
	Config map[string]interface{} `json:"config"`
}

// RelationStoreConfig contains configuration for the relation store.
//
// Supported providers: sqlite, neo4j, none. With "none" the engine runs
// similarity-only and every query reports the graph as unavailable.
type RelationStoreConfig struct {
	// Provider is the relation store provider name.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For Neo4j: uri, username, password
	Config map[string]interface{} `json:"config"`
}

// EngineConfig contains tunable engine behavior.
type EngineConfig struct {
	// ExtractionMinConfidence drops extracted relations below this
	// confidence. Default: 0.5. Set to -1 to keep every extracted
	// relation; zero means "use the default".
	ExtractionMinConfidence float64 `json:"extraction_min_confidence"`

	// GraphTraverseDepth is the neighbor traversal depth for queries.
	// Default: 2. Set to -1 to disable traversal entirely; zero means
	// "use the default".
	GraphTraverseDepth int `json:"graph_traverse_depth"`

	// ExtractionTimeout bounds a single extraction call. Default: 15s.
	ExtractionTimeout time.Duration `json:"extraction_timeout"`

	// StoreTimeout bounds a single store call. Default: 5s.
	StoreTimeout time.Duration `json:"store_timeout"`

	// DedupThreshold suppresses ingestion when an existing fact scores at
	// or above this similarity. Zero disables deduplication.
	DedupThreshold float64 `json:"dedup_threshold,omitempty"`

	// SearchLimit is the default number of query results. Default: 10.
	SearchLimit int `json:"search_limit"`
}

// HTTPConfig contains the optional HTTP listener configuration.
type HTTPConfig struct {
	// Enabled turns the HTTP surface on.
	Enabled bool `json:"enabled"`

	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - SIMILARITY_PROVIDER (sqlite, postgres, mysql, chromem)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - RELATION_PROVIDER (sqlite, neo4j, none)
//   - GRAPH_SQLITE_PATH, NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_BASE_URL, EMBEDDING_MODEL_DIMS
//   - EXTRACTION_MIN_CONFIDENCE, GRAPH_TRAVERSE_DEPTH
//   - EXTRACTION_TIMEOUT_SECONDS, STORE_TIMEOUT_SECONDS, DEDUP_THRESHOLD
//   - HTTP_ENABLED, HTTP_ADDR
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	simProvider := getEnvOrDefault("SIMILARITY_PROVIDER", "sqlite")
	simConfig := make(map[string]interface{})

	switch simProvider {
	case "sqlite":
		simConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./duomem.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "facts"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_MODEL_DIMS", "1536"))

		simConfig = map[string]interface{}{
			"host":                 getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":                 port,
			"user":                 getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":             os.Getenv("POSTGRES_PASSWORD"),
			"db_name":              getEnvOrDefault("POSTGRES_DATABASE", "duomem"),
			"table_name":           getEnvOrDefault("POSTGRES_TABLE", "facts"),
			"embedding_model_dims": dims,
			"ssl_mode":             getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))

		simConfig = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"db_name":    getEnvOrDefault("MYSQL_DATABASE", "duomem"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "facts"),
		}
	}

	relProvider := getEnvOrDefault("RELATION_PROVIDER", "sqlite")
	relConfig := make(map[string]interface{})

	switch relProvider {
	case "sqlite":
		relConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("GRAPH_SQLITE_PATH", "./duomem_graph.db"),
		}
	case "neo4j":
		relConfig = map[string]interface{}{
			"uri":      getEnvOrDefault("NEO4J_URI", "bolt://localhost:7687"),
			"username": getEnvOrDefault("NEO4J_USERNAME", "neo4j"),
			"password": os.Getenv("NEO4J_PASSWORD"),
		}
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	var llmBaseURL string
	var defaultModel string

	switch llmProvider {
	case "ollama":
		llmBaseURL = os.Getenv("OLLAMA_LLM_BASE_URL")
		if llmBaseURL == "" {
			llmBaseURL = "http://localhost:11434"
		}
		defaultModel = "llama3.1"
	default:
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		defaultModel = "gpt-4o-mini"
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_MODEL_DIMS", "1536"))

	minConfidence := getEnvFloat("EXTRACTION_MIN_CONFIDENCE", 0.5)
	depth, _ := strconv.Atoi(getEnvOrDefault("GRAPH_TRAVERSE_DEPTH", "2"))
	extractionTimeout, _ := strconv.Atoi(getEnvOrDefault("EXTRACTION_TIMEOUT_SECONDS", "15"))
	storeTimeout, _ := strconv.Atoi(getEnvOrDefault("STORE_TIMEOUT_SECONDS", "5"))
	dedupThreshold := getEnvFloat("DEDUP_THRESHOLD", 0)
	searchLimit, _ := strconv.Atoi(getEnvOrDefault("SEARCH_LIMIT", "10"))

	config := &Config{
		LLM: LLMConfig{
			Provider: llmProvider,
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", defaultModel),
			BaseURL:  llmBaseURL,
		},
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		SimilarityStore: SimilarityStoreConfig{
			Provider: simProvider,
			Config:   simConfig,
		},
		RelationStore: RelationStoreConfig{
			Provider: relProvider,
			Config:   relConfig,
		},
		Engine: EngineConfig{
			ExtractionMinConfidence: minConfidence,
			GraphTraverseDepth:      depth,
			ExtractionTimeout:       time.Duration(extractionTimeout) * time.Second,
			StoreTimeout:            time.Duration(storeTimeout) * time.Second,
			DedupThreshold:          dedupThreshold,
			SearchLimit:             searchLimit,
		},
		HTTP: HTTPConfig{
			Enabled: os.Getenv("HTTP_ENABLED") == "true",
			Addr:    getEnvOrDefault("HTTP_ADDR", ":8080"),
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", KindValidationError, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", KindValidationError, err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that required providers are set and the numeric knobs are sane.
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewEngineError("Validate", KindValidationError, ErrInvalidConfig)
	}
	if c.SimilarityStore.Provider == "" {
		return NewEngineError("Validate", KindValidationError, ErrInvalidConfig)
	}
	if c.Engine.ExtractionMinConfidence != -1 &&
		(c.Engine.ExtractionMinConfidence < 0 || c.Engine.ExtractionMinConfidence > 1) {
		return NewEngineError("Validate", KindValidationError, ErrInvalidConfig)
	}
	if c.Engine.DedupThreshold < 0 || c.Engine.DedupThreshold > 1 {
		return NewEngineError("Validate", KindValidationError, ErrInvalidConfig)
	}
	if c.Engine.GraphTraverseDepth < -1 {
		return NewEngineError("Validate", KindValidationError, ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills zero values with engine defaults. -1 is the explicit
// "off" value for the knobs whose natural zero would otherwise be
// indistinguishable from unset.
func (c *Config) applyDefaults() {
	if c.Engine.ExtractionMinConfidence == 0 {
		c.Engine.ExtractionMinConfidence = 0.5
	}
	if c.Engine.GraphTraverseDepth == 0 {
		c.Engine.GraphTraverseDepth = 2
	}
	if c.Engine.ExtractionTimeout == 0 {
		c.Engine.ExtractionTimeout = 15 * time.Second
	}
	if c.Engine.StoreTimeout == 0 {
		c.Engine.StoreTimeout = 5 * time.Second
	}
	if c.Engine.SearchLimit == 0 {
		c.Engine.SearchLimit = 10
	}
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
