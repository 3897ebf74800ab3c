package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/syllabus/helper"
)

// Embedder turns texts into vectors of a fixed dimension, one vector per text in input order.
// The same embedder must be used for writing and querying a collection.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// EmbedFunc is a function that generates embeddings for a batch of texts
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

type funcEmbedder struct {
	model     string
	dimension int
	fn        EmbedFunc
}

// NewFuncEmbedder adapts a function into an Embedder.
func NewFuncEmbedder(model string, dimension int, fn EmbedFunc) Embedder {
	return &funcEmbedder{model: model, dimension: dimension, fn: fn}
}

func (e *funcEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.fn(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := checkEmbeddings(texts, embeddings, e.dimension); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (e *funcEmbedder) Dimension() int { return e.dimension }

func (e *funcEmbedder) Model() string { return e.model }

// HugotEmbedder runs a sentence transformer ONNX model in process.
type HugotEmbedder struct {
	mu        sync.Mutex
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	model     string
	dimension int
}

// NewHugotEmbedder downloads modelName into modelDir if needed and starts a Go backend session.
// The default model paraphrase-multilingual-MiniLM-L12-v2 covers English and Malayalam
// and produces 384-dimensional embeddings.
func NewHugotEmbedder(modelDir string, modelName string, dimension int) (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(modelDir, modelName, "onnx/model.onnx")
	if err != nil {
		return nil, helper.NewError("prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "syllabus-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewError("create sentence pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewError("create sentence pipeline", err)
	}

	return &HugotEmbedder{
		session:   session,
		pipeline:  sentencePipeline,
		model:     modelName,
		dimension: dimension,
	}, nil
}

// Embed runs the pipeline over the whole batch. Calls are serialized on the session.
func (e *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("embed", err)
	}

	e.mu.Lock()
	result, err := e.pipeline.RunPipeline(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, helper.NewError("generate embedding", err)
	}

	if err := checkEmbeddings(texts, result.Embeddings, e.dimension); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

func (e *HugotEmbedder) Dimension() int { return e.dimension }

func (e *HugotEmbedder) Model() string { return e.model }

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Destroy()
}

func checkEmbeddings(texts []string, embeddings [][]float32, dimension int) error {
	if len(embeddings) != len(texts) {
		return helper.NewError("embedding validation", fmt.Errorf("got %d embeddings for %d texts", len(embeddings), len(texts)))
	}
	for i, embedding := range embeddings {
		if len(embedding) != dimension {
			return helper.NewError("embedding validation", fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(embedding), dimension))
		}
	}
	return nil
}
