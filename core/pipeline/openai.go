package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/syllabus/helper"
)

// OpenAIEmbedder calls an OpenAI compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder for the given model. An empty baseURL uses the OpenAI API.
// The dimension is sent with every request so models with adjustable output size match the index.
func NewOpenAIEmbedder(apiKey string, baseURL string, model string, dimension int) (*OpenAIEmbedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, helper.NewError("openai embedder", fmt.Errorf("api key is empty"))
	}
	if model == "" {
		return nil, helper.NewError("openai embedder", fmt.Errorf("model is empty"))
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed sends the whole batch in one request and returns the vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.dimension,
	})
	if err != nil {
		return nil, helper.NewError("create embeddings", err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, 0, len(data))
	for _, d := range data {
		embeddings = append(embeddings, d.Embedding)
	}

	if err := checkEmbeddings(texts, embeddings, e.dimension); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Model() string { return e.model }
