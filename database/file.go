package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

// ErrModelMismatch is returned when a collection file was written with another embedding model.
var ErrModelMismatch = errors.New("collection was written with a different embedding model")

const fileCreatedAtKey = "created_at"

// fileSidecar records which embedder wrote a collection file.
type fileSidecar struct {
	Collection string `json:"collection"`
	Model      string `json:"embedding_model"`
	Dimension  int    `json:"embedding_dimension"`
}

// FileCollection is an embedded chromem-go collection. With a directory it is exported to
// <dir>/<collection>.gob.gz after every write, next to a <collection>.meta.json sidecar
// holding the embedding model and dimension. With an empty dir nothing is written to disk.
type FileCollection struct {
	mu         sync.RWMutex
	path       string
	sidecar    string
	name       string
	model      string
	dimension  int
	db         *chromem.DB
	collection *chromem.Collection
}

// NewFileCollection opens or creates the collection file.
func NewFileCollection(dir string, collection string, embeddingModel string, dimension int) (*FileCollection, error) {
	if collection == "" {
		return nil, helper.NewError("collection validation", fmt.Errorf("collection name is empty"))
	}
	if dimension <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", dimension))
	}

	c := &FileCollection{
		name:      collection,
		model:     embeddingModel,
		dimension: dimension,
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, helper.NewError("create index directory", err)
		}
		c.path = filepath.Join(dir, collection+".gob.gz")
		c.sidecar = filepath.Join(dir, collection+".meta.json")
	}

	if err := c.load(); err != nil {
		return nil, helper.NewError("load collection", err)
	}

	return c, nil
}

// NewMemoryCollection returns a collection that is never persisted.
func NewMemoryCollection(collection string, embeddingModel string, dimension int) (*FileCollection, error) {
	return NewFileCollection("", collection, embeddingModel, dimension)
}

// Path returns the collection file, empty for in-memory collections.
func (c *FileCollection) Path() string {
	return c.path
}

func precomputedOnly(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("file collection only stores precomputed embeddings")
}

func (c *FileCollection) load() error {
	db := chromem.NewDB()

	if c.path != "" {
		if err := c.checkSidecar(); err != nil {
			return err
		}
		if _, err := os.Stat(c.path); err == nil {
			if err := db.ImportFromFile(c.path, ""); err != nil {
				return fmt.Errorf("import %s: %w", c.path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	collection, err := db.GetOrCreateCollection(c.name, nil, precomputedOnly)
	if err != nil {
		return err
	}

	c.db = db
	c.collection = collection
	return nil
}

func (c *FileCollection) checkSidecar() error {
	b, err := os.ReadFile(c.sidecar)
	if errors.Is(err, os.ErrNotExist) {
		b, err = json.Marshal(fileSidecar{Collection: c.name, Model: c.model, Dimension: c.dimension})
		if err != nil {
			return err
		}
		return os.WriteFile(c.sidecar, b, 0600)
	}
	if err != nil {
		return err
	}

	sidecar := fileSidecar{}
	if err := json.Unmarshal(b, &sidecar); err != nil {
		return fmt.Errorf("decode %s: %w", c.sidecar, err)
	}
	if sidecar.Model != c.model || sidecar.Dimension != c.dimension {
		return fmt.Errorf("%w: %s holds %s/%d, configured %s/%d", ErrModelMismatch, c.path, sidecar.Model, sidecar.Dimension, c.model, c.dimension)
	}
	return nil
}

// persist exports db through a temp file and a rename. Caller holds the write lock.
func (c *FileCollection) persist(db *chromem.DB) error {
	if c.path == "" {
		return nil
	}

	tmp := filepath.Join(filepath.Dir(c.path), c.name+".tmp.gob.gz")
	defer os.Remove(tmp)

	if err := db.ExportToFile(tmp, true, ""); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Upsert stores the chunks, replacing documents with the same id and keeping their
// creation time. A failed write leaves the collection as it was before the call.
// Every call exports the whole collection, so an ingest in batches of b chunks writes
// the file n/b times.
func (c *FileCollection) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if err := ctx.Err(); err != nil {
		return helper.NewError("upsert", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != c.dimension {
			return helper.NewError("embedding validation", fmt.Errorf("chunk %s has dimension %d, expected %d", chunk.ID, len(chunk.Embedding), c.dimension))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	previous := make(map[string]*chromem.Document, len(chunks))
	documents := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		id := chunk.ID.String()
		createdAt := now
		if existing, err := c.collection.GetByID(ctx, id); err == nil {
			previous[id] = &existing
			if t, err := time.Parse(time.RFC3339Nano, existing.Metadata[fileCreatedAtKey]); err == nil {
				createdAt = t
			}
		} else if _, ok := previous[id]; !ok {
			previous[id] = nil
		}

		metadata := chromemMetadata(chunk.Metadata)
		metadata[fileCreatedAtKey] = createdAt.Format(time.RFC3339Nano)
		documents = append(documents, chromem.Document{
			ID:        id,
			Content:   chunk.Text,
			Metadata:  metadata,
			Embedding: append([]float32(nil), chunk.Embedding...),
		})
	}

	if err := c.collection.AddDocuments(ctx, documents, 1); err != nil {
		c.restore(previous)
		return helper.NewError("add documents", err)
	}
	if err := c.persist(c.db); err != nil {
		c.restore(previous)
		return helper.NewError("persist", err)
	}
	return nil
}

// restore puts back the documents an upsert replaced and removes the ones it added.
func (c *FileCollection) restore(previous map[string]*chromem.Document) {
	ctx := context.Background()
	for id, document := range previous {
		if document == nil {
			_ = c.collection.Delete(ctx, nil, nil, id)
			continue
		}
		_ = c.collection.AddDocument(ctx, *document)
	}
}

// Query returns up to limit chunks matching filter, nearest first. A zero query vector
// has no direction and matches nothing.
func (c *FileCollection) Query(ctx context.Context, embedding []float32, limit int, filter model.Metadata) ([]*model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("query", err)
	}
	if limit <= 0 {
		return []*model.Chunk{}, nil
	}
	if len(embedding) != c.dimension {
		return nil, helper.NewError("embedding validation", fmt.Errorf("query has dimension %d, expected %d", len(embedding), c.dimension))
	}
	if isZero(embedding) {
		return []*model.Chunk{}, nil
	}

	where, err := chromemWhere(filter)
	if err != nil {
		return nil, helper.NewError("filter", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := c.collection.Count()
	if count == 0 {
		return []*model.Chunk{}, nil
	}

	found, err := c.collection.QueryEmbedding(ctx, embedding, min(limit, count), where, nil)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	results := make([]*model.Chunk, 0, len(found))
	for _, r := range found {
		chunk, err := chromemChunk(r)
		if err != nil {
			return nil, helper.NewError("decode result", err)
		}
		results = append(results, chunk)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (c *FileCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count(), nil
}

// Reset replaces the collection with an empty one. The old content stays when the
// empty collection cannot be written.
func (c *FileCollection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	db := chromem.NewDB()
	collection, err := db.CreateCollection(c.name, nil, precomputedOnly)
	if err != nil {
		return helper.NewError("create collection", err)
	}
	if err := c.persist(db); err != nil {
		return helper.NewError("persist", err)
	}

	c.db = db
	c.collection = collection
	return nil
}

// Close is a no-op, every write is persisted immediately.
func (c *FileCollection) Close() error {
	return nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func chromemMetadata(m model.ChunkMetadata) map[string]string {
	return map[string]string{
		"grade":         strconv.Itoa(m.Grade),
		"subject":       m.Subject,
		"chapter_no":    strconv.Itoa(m.ChapterNo),
		"chapter_title": m.ChapterTitle,
		"topic":         m.Topic,
		"language":      string(m.Language),
		"difficulty":    m.Difficulty,
		"keywords":      m.Keywords,
	}
}

func chromemChunk(r chromem.Result) (*model.Chunk, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	grade, err := strconv.Atoi(r.Metadata["grade"])
	if err != nil {
		return nil, fmt.Errorf("grade of %s: %w", r.ID, err)
	}
	chapterNo, err := strconv.Atoi(r.Metadata["chapter_no"])
	if err != nil {
		return nil, fmt.Errorf("chapter_no of %s: %w", r.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.Metadata[fileCreatedAtKey])
	if err != nil {
		return nil, fmt.Errorf("created_at of %s: %w", r.ID, err)
	}

	return &model.Chunk{
		ID:   id,
		Text: r.Content,
		Metadata: model.ChunkMetadata{
			Grade:        grade,
			Subject:      r.Metadata["subject"],
			ChapterNo:    chapterNo,
			ChapterTitle: r.Metadata["chapter_title"],
			Topic:        r.Metadata["topic"],
			Language:     model.Language(r.Metadata["language"]),
			Difficulty:   r.Metadata["difficulty"],
			Keywords:     r.Metadata["keywords"],
		},
		CreatedAt: createdAt,
		Distance:  1 - float64(r.Similarity),
	}, nil
}

// chromemWhere renders an equality filter in the string form the documents are stored in.
func chromemWhere(filter model.Metadata) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	where := make(map[string]string, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case string:
			where[key] = v
		case model.Language:
			where[key] = string(v)
		case bool:
			where[key] = strconv.FormatBool(v)
		case int:
			where[key] = strconv.Itoa(v)
		case int64:
			where[key] = strconv.FormatInt(v, 10)
		case float64:
			where[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("unsupported filter value %v of type %T for %q", v, v, key)
		}
	}
	return where, nil
}
