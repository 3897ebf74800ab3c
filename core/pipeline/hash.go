package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedderModel is the model identifier reported by the hashing embedder.
const HashEmbedderModel = "hash-bag-of-words"

type hashEmbedder struct {
	dimension int
}

// NewHashEmbedder returns a deterministic bag of words embedder: every lower cased
// letter/digit token adds 1 to the dimension selected by its FNV-1a hash.
// It needs no model and works offline, texts sharing words get a high cosine similarity.
func NewHashEmbedder(dimension int) (Embedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hash embedder dimension must be positive, got %d", dimension)
	}
	return &hashEmbedder{dimension: dimension}, nil
}

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.embed(text)
	}
	return embeddings, nil
}

func (e *hashEmbedder) embed(text string) []float32 {
	vector := make([]float32, e.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
	for _, token := range tokens {
		h := fnv.New32a()
		h.Write([]byte(token))
		vector[h.Sum32()%uint32(e.dimension)]++
	}
	return vector
}

func (e *hashEmbedder) Dimension() int { return e.dimension }

func (e *hashEmbedder) Model() string { return HashEmbedderModel }
