package database

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
	loadSql "github.com/siherrmann/syllabus/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	Upsert(ctx context.Context, chunks []*model.Chunk) error
	Query(ctx context.Context, embedding []float32, limit int, filter model.Metadata) ([]*model.Chunk, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// ChunksDBHandler stores the chunks of one collection in the table chunks_<collection>.
type ChunksDBHandler struct {
	db           *helper.Database
	table        string
	embeddingDim int
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the extensions, loads chunk-related SQL functions and creates the collection table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, collection string, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if collection == "" {
		return nil, helper.NewError("collection validation", fmt.Errorf("collection name is empty"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		table:        "chunks_" + collection,
		embeddingDim: embeddingDim,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := loadSql.Init(ctx, db.Instance)
	if err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	err = loadSql.LoadChunksSql(ctx, db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(ctx)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", "table", chunksDbHandler.table)

	return chunksDbHandler, nil
}

// Table returns the name of the collection table.
func (h *ChunksDBHandler) Table() string {
	return h.table
}

// CreateTable creates the collection table with its vector and metadata indexes.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1, $2);`, h.table, h.embeddingDim)
	if err != nil {
		return helper.NewError("exec", err)
	}

	h.db.Logger.Info("Checked/created table", "table", h.table)

	return nil
}

// Upsert inserts the chunks or overwrites the ones with an existing id, in one transaction.
func (h *ChunksDBHandler) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin", err)
	}
	defer tx.Rollback()

	for _, chunk := range chunks {
		if len(chunk.Embedding) != h.embeddingDim {
			return helper.NewError("embedding validation", fmt.Errorf("chunk %s has dimension %d, expected %d", chunk.ID, len(chunk.Embedding), h.embeddingDim))
		}

		_, err := tx.ExecContext(
			ctx,
			`SELECT upsert_chunk($1, $2, $3, $4, $5)`,
			h.table,
			chunk.ID,
			chunk.Text,
			chunk.Metadata,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return helper.NewError("exec", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// Query performs a cosine similarity search, optionally restricted to chunks
// whose metadata contains every field of filter.
func (h *ChunksDBHandler) Query(ctx context.Context, embedding []float32, limit int, filter model.Metadata) ([]*model.Chunk, error) {
	if limit <= 0 {
		return []*model.Chunk{}, nil
	}

	var filterParam interface{}
	if len(filter) > 0 {
		filterParam = filter
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`,
		h.table,
		pgvector.NewVector(embedding),
		limit,
		filterParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	results := []*model.Chunk{}
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Distance,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// Count returns the number of stored chunks.
func (h *ChunksDBHandler) Count(ctx context.Context) (int, error) {
	var count int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT count_chunks($1)`, h.table).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// Reset drops the collection table and creates it again empty.
func (h *ChunksDBHandler) Reset(ctx context.Context) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT drop_chunks($1)`, h.table)
	if err != nil {
		return helper.NewError("drop table", err)
	}

	err = h.CreateTable(ctx)
	if err != nil {
		return helper.NewError("create table", err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (h *ChunksDBHandler) Close() error {
	return h.db.Close()
}
