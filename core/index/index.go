package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/syllabus/core/pipeline"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

// ErrDistanceAnomaly is returned when the backend reports a negative cosine distance.
var ErrDistanceAnomaly = errors.New("backend returned a negative cosine distance")

const distanceTolerance = 1e-6

// Index embeds texts and stores them in a collection. The embedder is bound at construction.
type Index struct {
	collection Collection
	embedder   pipeline.Embedder
	config     model.IndexConfig
	metrics    *Metrics
	logger     *slog.Logger
}

// NewIndex creates an index over collection.
func NewIndex(collection Collection, embedder pipeline.Embedder, config model.IndexConfig, logger *slog.Logger) (*Index, error) {
	if collection == nil {
		return nil, helper.NewError("index validation", fmt.Errorf("collection is nil"))
	}
	if embedder == nil {
		return nil, helper.NewError("index validation", fmt.Errorf("embedder is nil"))
	}
	if config.EmbeddingDimension != 0 && config.EmbeddingDimension != embedder.Dimension() {
		return nil, helper.NewError("index validation", fmt.Errorf("embedder dimension %d does not match configured %d", embedder.Dimension(), config.EmbeddingDimension))
	}
	if config.BatchSize <= 0 {
		config.BatchSize = model.DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Index{
		collection: collection,
		embedder:   embedder,
		config:     config,
		logger:     logger,
	}, nil
}

// Collection returns the backend the index stores its chunks in.
func (i *Index) Collection() Collection {
	return i.collection
}

// SetMetrics makes the index record into m. Call it before the index is shared.
func (i *Index) SetMetrics(m *Metrics) {
	i.metrics = m
}

// Config returns the index configuration.
func (i *Index) Config() model.IndexConfig {
	return i.config
}

// EmbeddingModel returns the identifier of the bound embedder.
func (i *Index) EmbeddingModel() string {
	return i.embedder.Model()
}

// AddDocuments embeds and upserts the chunks in batches of the configured size and
// returns the number written. Chunks without id or text are skipped.
func (i *Index) AddDocuments(ctx context.Context, chunks []*model.Chunk) (int, error) {
	valid := make([]*model.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == uuid.Nil || strings.TrimSpace(chunk.Text) == "" {
			i.logger.Warn("Skipping chunk without id or text")
			continue
		}
		valid = append(valid, chunk)
	}
	i.metrics.skipped(len(chunks) - len(valid))
	if len(valid) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(valid); start += i.config.BatchSize {
		end := min(start+i.config.BatchSize, len(valid))
		batch := valid[start:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Text
		}

		i.metrics.batch()
		embeddings, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return written, helper.NewError("embed batch", err)
		}
		for j, chunk := range batch {
			chunk.Embedding = embeddings[j]
		}

		if err := i.collection.Upsert(ctx, batch); err != nil {
			return written, helper.NewError("upsert batch", err)
		}
		written += len(batch)
		i.metrics.added(len(batch))
	}

	i.logger.Debug("Added documents", "count", written)

	return written, nil
}

// Query returns up to limit results nearest to text, best first. The limit is capped
// to the stored count and an empty index returns no results without embedding.
func (i *Index) Query(ctx context.Context, text string, limit int, filter model.Metadata) ([]*model.RetrievalResult, error) {
	start := time.Now()
	results, err := i.query(ctx, text, limit, filter)
	switch {
	case err != nil:
		i.metrics.query("error", start)
	case len(results) == 0:
		i.metrics.query("empty", start)
	default:
		i.metrics.query("ok", start)
	}
	return results, err
}

func (i *Index) query(ctx context.Context, text string, limit int, filter model.Metadata) ([]*model.RetrievalResult, error) {
	if limit <= 0 {
		return []*model.RetrievalResult{}, nil
	}

	count, err := i.collection.Count(ctx)
	if err != nil {
		return nil, helper.NewError("count", err)
	}
	if count == 0 {
		return []*model.RetrievalResult{}, nil
	}
	limit = min(limit, count)

	embeddings, err := i.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	chunks, err := i.collection.Query(ctx, embeddings[0], limit, filter)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	results := make([]*model.RetrievalResult, 0, len(chunks))
	for _, chunk := range chunks {
		score, err := Score(chunk.Distance)
		if err != nil {
			i.metrics.anomaly()
			return nil, helper.NewError("score", err)
		}
		results = append(results, &model.RetrievalResult{
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
			Score:    score,
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Count returns the number of stored chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	count, err := i.collection.Count(ctx)
	if err != nil {
		return 0, helper.NewError("count", err)
	}
	return count, nil
}

// Clear deletes every chunk and recreates the empty collection.
// Callers must stop other access to the index while it runs.
func (i *Index) Clear(ctx context.Context) error {
	i.logger.Warn("Clearing index", "collection", i.config.Collection, "backend", i.config.Backend)

	if err := i.collection.Reset(ctx); err != nil {
		return helper.NewError("reset", err)
	}
	return nil
}

// Close releases the collection.
func (i *Index) Close() error {
	return i.collection.Close()
}

// Score converts a cosine distance into 1 - distance rounded to 4 decimals.
// Distances above 1 give 0, negative distances beyond float noise are an error.
func Score(distance float64) (float64, error) {
	if math.IsNaN(distance) || distance < -distanceTolerance {
		return 0, fmt.Errorf("%w: %v", ErrDistanceAnomaly, distance)
	}

	score := 1 - distance
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*10000) / 10000, nil
}
