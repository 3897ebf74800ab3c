package model

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// ErrInvalidConfig marks a configuration value that can not be used.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMilvus   = "milvus"

	EmbeddingProviderHugot  = "hugot"
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderHash   = "hash"

	DefaultCollectionName     = "kerala_syllabus"
	DefaultEmbeddingModel     = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"
	DefaultEmbeddingDimension = 384
	DefaultBatchSize          = 100
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IndexConfig is the durable configuration of an index:
// where it lives, under which collection name and with which embedding model.
type IndexConfig struct {
	Backend            string `json:"backend"`
	Path               string `json:"path"`
	Collection         string `json:"collection"`
	EmbeddingProvider  string `json:"embedding_provider"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ModelDir           string `json:"model_dir"`
	BatchSize          int    `json:"batch_size"`
}

// RetrievalConfig holds the retrieval policy knobs.
// Zero numeric fields take the defaults, the fallback is only turned off by DisableFallback.
type RetrievalConfig struct {
	TopK              int  `json:"top_k"`
	MinScopedHits     int  `json:"min_scoped_hits"`     // fallback runs when the grade scoped stage returns fewer
	DedupPrefixLength int  `json:"dedup_prefix_length"` // characters compared for duplicate detection
	DisableFallback   bool `json:"disable_fallback"`
}

// Configuration bundles everything the facade needs.
type Configuration struct {
	Index            IndexConfig     `json:"index"`
	Retrieval        RetrievalConfig `json:"retrieval"`
	SyllabusDataPath string          `json:"syllabus_data_path"`
}

// DefaultIndexConfig returns a file backed index in ./vector_index
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Backend:            BackendFile,
		Path:               "./vector_index",
		Collection:         DefaultCollectionName,
		EmbeddingProvider:  EmbeddingProviderHugot,
		EmbeddingModel:     DefaultEmbeddingModel,
		EmbeddingDimension: DefaultEmbeddingDimension,
		ModelDir:           "./models",
		BatchSize:          DefaultBatchSize,
	}
}

// DefaultRetrievalConfig returns the retrieval policy used by the original service.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:              5,
		MinScopedHits:     3,
		DedupPrefixLength: 80,
	}
}

// WithDefaults returns c with every zero numeric field set to its default.
func (c RetrievalConfig) WithDefaults() RetrievalConfig {
	defaults := DefaultRetrievalConfig()
	if c.TopK == 0 {
		c.TopK = defaults.TopK
	}
	if c.MinScopedHits == 0 {
		c.MinScopedHits = defaults.MinScopedHits
	}
	if c.DedupPrefixLength == 0 {
		c.DedupPrefixLength = defaults.DedupPrefixLength
	}
	return c
}

// DefaultConfiguration returns the defaults of every section.
func DefaultConfiguration() Configuration {
	return Configuration{
		Index:            DefaultIndexConfig(),
		Retrieval:        DefaultRetrievalConfig(),
		SyllabusDataPath: "./data/syllabus",
	}
}

// NewConfigurationFromEnv overlays the environment on the defaults and validates the result.
func NewConfigurationFromEnv() (*Configuration, error) {
	config := DefaultConfiguration()

	setString(&config.Index.Backend, "INDEX_BACKEND")
	setString(&config.Index.Path, "INDEX_PATH")
	setString(&config.Index.Collection, "COLLECTION_NAME")
	setString(&config.Index.EmbeddingProvider, "EMBEDDING_PROVIDER")
	setString(&config.Index.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&config.Index.ModelDir, "MODEL_DIR")
	setString(&config.SyllabusDataPath, "SYLLABUS_DATA_PATH")

	for key, target := range map[string]*int{
		"EMBEDDING_DIMENSION":           &config.Index.EmbeddingDimension,
		"INDEX_BATCH_SIZE":              &config.Index.BatchSize,
		"RETRIEVAL_TOP_K":               &config.Retrieval.TopK,
		"RETRIEVAL_MIN_SCOPED_HITS":     &config.Retrieval.MinScopedHits,
		"RETRIEVAL_DEDUP_PREFIX_LENGTH": &config.Retrieval.DedupPrefixLength,
	} {
		if err := setInt(target, key); err != nil {
			return nil, err
		}
	}

	if err := setBool(&config.Retrieval.DisableFallback, "RETRIEVAL_DISABLE_FALLBACK"); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks every section.
func (c *Configuration) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return err
	}
	return c.Retrieval.Validate()
}

// Validate checks the index configuration.
func (c *IndexConfig) Validate() error {
	switch c.Backend {
	case BackendFile, BackendPostgres, BackendMilvus:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	switch c.EmbeddingProvider {
	case EmbeddingProviderHugot, EmbeddingProviderOpenAI, EmbeddingProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.EmbeddingProvider)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name %q must match %s", ErrInvalidConfig, c.Collection, collectionNamePattern)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model is empty", ErrInvalidConfig)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top k must be positive", ErrInvalidConfig)
	}
	if c.MinScopedHits <= 0 {
		return fmt.Errorf("%w: min scoped hits must be positive", ErrInvalidConfig)
	}
	if c.DedupPrefixLength <= 0 {
		return fmt.Errorf("%w: dedup prefix length must be positive", ErrInvalidConfig)
	}
	return nil
}

func setString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, value)
	}
	*target = n
	return nil
}

func setBool(target *bool, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, value)
	}
	*target = b
	return nil
}
