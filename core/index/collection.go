package index

import (
	"context"

	"github.com/siherrmann/syllabus/model"
)

// Collection is a storage backend holding chunks with their embeddings.
// Query returns chunks nearest first with Distance set to the cosine distance.
// Reset deletes everything and leaves an empty, usable collection.
type Collection interface {
	Upsert(ctx context.Context, chunks []*model.Chunk) error
	Query(ctx context.Context, embedding []float32, limit int, filter model.Metadata) ([]*model.Chunk, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}
