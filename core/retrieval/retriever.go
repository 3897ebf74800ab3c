package retrieval

import (
	"context"
	"log/slog"

	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

const (
	// EmptyIndexMessage is the context returned while nothing has been ingested.
	EmptyIndexMessage = "Vector store is empty. Run ingest first."
	// NoContentMessage is the context returned when no chunk matched the query.
	NoContentMessage = "No relevant syllabus content found for this query."
)

// Searcher is the read side of the index.
type Searcher interface {
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, text string, limit int, filter model.Metadata) ([]*model.RetrievalResult, error)
}

// Retriever runs the grade scoped search with an unscoped fallback and renders the context.
type Retriever struct {
	searcher Searcher
	config   model.RetrievalConfig
	logger   *slog.Logger
}

// NewRetriever creates a retriever. Zero or negative numeric fields take the defaults.
func NewRetriever(searcher Searcher, config model.RetrievalConfig, logger *slog.Logger) *Retriever {
	defaults := model.DefaultRetrievalConfig()
	config = config.WithDefaults()
	if config.TopK < 0 {
		config.TopK = defaults.TopK
	}
	if config.DedupPrefixLength < 0 {
		config.DedupPrefixLength = defaults.DedupPrefixLength
	}
	if config.MinScopedHits < 0 {
		config.MinScopedHits = defaults.MinScopedHits
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Retriever{
		searcher: searcher,
		config:   config,
		logger:   logger,
	}
}

// Config returns the retrieval policy in use.
func (r *Retriever) Config() model.RetrievalConfig {
	return r.config
}

// Retrieve answers one query. Results of the grade scoped search come first; when it
// returns fewer than MinScopedHits results and the fallback is enabled, unscoped results
// whose text prefix was not seen yet are appended. The list is cut to topK. An empty index or an empty result is
// reported through the context message, only backend failures return an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, grade int, language model.Language, topK int) (*model.RetrievalResponse, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	count, err := r.searcher.Count(ctx)
	if err != nil {
		return nil, helper.NewError("count", err)
	}
	if count == 0 {
		r.logger.Warn("Retrieve on empty index", "grade", grade)
		return emptyResponse(EmptyIndexMessage, query, grade), nil
	}

	scoped, err := r.searcher.Query(ctx, query, topK, model.Metadata{"grade": grade})
	if err != nil {
		return nil, helper.NewError("grade scoped query", err)
	}

	results := make([]*model.RetrievalResult, 0, topK)
	results = append(results, scoped...)

	if !r.config.DisableFallback && len(scoped) < r.config.MinScopedHits {
		global, err := r.searcher.Query(ctx, query, topK, nil)
		if err != nil {
			return nil, helper.NewError("fallback query", err)
		}

		seen := make(map[string]bool, len(results)+len(global))
		for _, result := range results {
			seen[prefix(result.Text, r.config.DedupPrefixLength)] = true
		}
		for _, result := range global {
			p := prefix(result.Text, r.config.DedupPrefixLength)
			if seen[p] {
				continue
			}
			seen[p] = true
			results = append(results, result)
		}

		r.logger.Debug("Fallback search", "scoped", len(scoped), "global", len(global), "merged", len(results))
	}

	if len(results) > topK {
		results = results[:topK]
	}
	if len(results) == 0 {
		return emptyResponse(NoContentMessage, query, grade), nil
	}

	response := &model.RetrievalResponse{
		Context:     FormatContext(results),
		Sources:     make([]model.ChunkMetadata, 0, len(results)),
		Scores:      make([]float64, 0, len(results)),
		ChunksFound: len(results),
		Query:       query,
		Grade:       grade,
	}
	for _, result := range results {
		response.Sources = append(response.Sources, result.Metadata)
		response.Scores = append(response.Scores, result.Score)
	}

	r.logger.Info("Retrieved context", "grade", grade, "language", string(language), "chunks", response.ChunksFound)

	return response, nil
}

func emptyResponse(message string, query string, grade int) *model.RetrievalResponse {
	return &model.RetrievalResponse{
		Context:     message,
		Sources:     []model.ChunkMetadata{},
		Scores:      []float64{},
		ChunksFound: 0,
		Query:       query,
		Grade:       grade,
	}
}
