package syllabus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/syllabus/core/index"
	"github.com/siherrmann/syllabus/core/pipeline"
	"github.com/siherrmann/syllabus/core/retrieval"
	"github.com/siherrmann/syllabus/database"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

// ErrTuningUnsupported is returned when the backend has no tunable vector index.
var ErrTuningUnsupported = errors.New("backend does not support vector index tuning")

// Syllabus bundles the index over the curriculum corpus with its ingestor and retriever.
type Syllabus struct {
	Config    model.Configuration
	Index     *index.Index
	Ingestor  *pipeline.Ingestor
	Retriever *retrieval.Retriever
	// Metrics holds the index collectors of this instance.
	Metrics  *prometheus.Registry
	embedder pipeline.Embedder
	// Logging
	log *slog.Logger
}

// New wires a Syllabus over an already opened collection and embedder.
func New(config model.Configuration, collection index.Collection, embedder pipeline.Embedder, logger *slog.Logger) (*Syllabus, error) {
	if logger == nil {
		logger = helper.NewPrettyLogger(os.Stdout, slog.LevelInfo)
	}
	config.Retrieval = config.Retrieval.WithDefaults()

	idx, err := index.NewIndex(collection, embedder, config.Index, logger)
	if err != nil {
		return nil, helper.NewError("create index", err)
	}

	registry := prometheus.NewRegistry()
	idx.SetMetrics(index.NewMetrics(registry))

	return &Syllabus{
		Config:    config,
		Index:     idx,
		Metrics:   registry,
		Ingestor:  pipeline.NewIngestor(idx, config.SyllabusDataPath, logger),
		Retriever: retrieval.NewRetriever(idx, config.Retrieval, logger),
		embedder:  embedder,
		log:       logger,
	}, nil
}

// Open creates the configured embedder and backend and wires a Syllabus over them.
func Open(ctx context.Context, config model.Configuration, logger *slog.Logger) (*Syllabus, error) {
	config.Retrieval = config.Retrieval.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate configuration", err)
	}
	if logger == nil {
		logger = helper.NewPrettyLogger(os.Stdout, slog.LevelInfo)
	}

	embedder, err := NewEmbedder(config.Index)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}

	collection, err := OpenCollection(ctx, config.Index, embedder.Model(), logger)
	if err != nil {
		closeIfCloser(embedder)
		return nil, helper.NewError("open collection", err)
	}

	s, err := New(config, collection, embedder, logger)
	if err != nil {
		collection.Close()
		closeIfCloser(embedder)
		return nil, err
	}

	logger.Info("Opened syllabus index", "backend", config.Index.Backend, "collection", config.Index.Collection, "embedding_model", embedder.Model())

	return s, nil
}

// NewEmbedder creates the embedder selected by the configured provider.
// The openai provider reads OPENAI_API_KEY and OPENAI_BASE_URL.
func NewEmbedder(config model.IndexConfig) (pipeline.Embedder, error) {
	switch config.EmbeddingProvider {
	case model.EmbeddingProviderHugot:
		embedder, err := pipeline.NewHugotEmbedder(config.ModelDir, config.EmbeddingModel, config.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		return embedder, nil
	case model.EmbeddingProviderOpenAI:
		embedder, err := pipeline.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), config.EmbeddingModel, config.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		return embedder, nil
	case model.EmbeddingProviderHash:
		embedder, err := pipeline.NewHashEmbedder(config.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		return embedder, nil
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrInvalidConfig, config.EmbeddingProvider)
}

// OpenCollection opens the configured backend. The postgres backend reads the DB_* and
// the milvus backend the MILVUS_* environment variables.
func OpenCollection(ctx context.Context, config model.IndexConfig, embeddingModel string, logger *slog.Logger) (index.Collection, error) {
	switch config.Backend {
	case model.BackendFile:
		collection, err := database.NewFileCollection(config.Path, config.Collection, embeddingModel, config.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		return collection, nil
	case model.BackendPostgres:
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return nil, err
		}
		db, err := helper.NewDatabase("syllabus", dbConfig, logger)
		if err != nil {
			return nil, err
		}
		chunks, err := database.NewChunksDBHandler(db, config.Collection, config.EmbeddingDimension, false)
		if err != nil {
			db.Close()
			return nil, err
		}
		return chunks, nil
	case model.BackendMilvus:
		collection, err := database.NewMilvusCollection(ctx, helper.NewMilvusConfiguration(), config.Collection, config.EmbeddingDimension, logger)
		if err != nil {
			return nil, err
		}
		return collection, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", model.ErrInvalidConfig, config.Backend)
}

// Retrieve answers a student query for a grade. A topK of 0 uses the configured default.
func (s *Syllabus) Retrieve(ctx context.Context, query string, grade int, language model.Language, topK int) (*model.RetrievalResponse, error) {
	response, err := s.Retriever.Retrieve(ctx, query, grade, language, topK)
	if err != nil {
		return nil, helper.NewError("retrieve", err)
	}
	return response, nil
}

// IngestAll ingests every syllabus file of the data directory into the index.
func (s *Syllabus) IngestAll(ctx context.Context) (*model.IngestReport, error) {
	total, processed, err := s.Ingestor.IngestAll(ctx)
	if err != nil {
		return nil, helper.NewError("ingest all", err)
	}
	return &model.IngestReport{
		ChunksIngested: total,
		FilesProcessed: processed,
		Message:        fmt.Sprintf("Successfully ingested %d bilingual chunks from %d syllabus files.", total, processed),
	}, nil
}

// Reingest clears the index and ingests the data directory again.
func (s *Syllabus) Reingest(ctx context.Context) (*model.IngestReport, error) {
	if err := s.Clear(ctx); err != nil {
		return nil, err
	}
	return s.IngestAll(ctx)
}

// EnsureIngested runs IngestAll when the index is empty. It returns nil when
// the index already held chunks.
func (s *Syllabus) EnsureIngested(ctx context.Context) (*model.IngestReport, error) {
	count, err := s.Index.Count(ctx)
	if err != nil {
		return nil, helper.NewError("count", err)
	}
	if count > 0 {
		s.log.Info("Vector store ready", "chunks", count)
		return nil, nil
	}

	s.log.Info("Vector store empty, ingesting syllabus", "path", s.Ingestor.DataPath())
	return s.IngestAll(ctx)
}

// Status reports the chunk count and the durable configuration of the index.
func (s *Syllabus) Status(ctx context.Context) (*model.Status, error) {
	count, err := s.Index.Count(ctx)
	if err != nil {
		return nil, helper.NewError("count", err)
	}

	status := model.StatusEmpty
	if count > 0 {
		status = model.StatusReady
	}

	return &model.Status{
		TotalChunks:    count,
		Status:         status,
		Backend:        s.Config.Index.Backend,
		EmbeddingModel: s.Index.EmbeddingModel(),
		CollectionName: s.Config.Index.Collection,
		IndexPath:      s.Config.Index.Path,
	}, nil
}

// Clear deletes every chunk of the index.
func (s *Syllabus) Clear(ctx context.Context) error {
	if err := s.Index.Clear(ctx); err != nil {
		return helper.NewError("clear", err)
	}
	return nil
}

// TuneVectorIndex rebuilds the vector index of the postgres backend with options.
func (s *Syllabus) TuneVectorIndex(ctx context.Context, options database.VectorIndexOptions) error {
	tuner, ok := s.Index.Collection().(interface {
		ChangeIndexType(ctx context.Context, options database.VectorIndexOptions) error
	})
	if !ok {
		return helper.NewError("tune vector index", fmt.Errorf("%w: %s", ErrTuningUnsupported, s.Config.Index.Backend))
	}
	if err := tuner.ChangeIndexType(ctx, options); err != nil {
		return helper.NewError("tune vector index", err)
	}
	return nil
}

// Close releases the backend and the embedder.
func (s *Syllabus) Close() error {
	return errors.Join(s.Index.Close(), closeIfCloser(s.embedder))
}

func closeIfCloser(v interface{}) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
