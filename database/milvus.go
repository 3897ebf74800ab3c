package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/siherrmann/syllabus/helper"
	"github.com/siherrmann/syllabus/model"
)

const (
	milvusFieldID        = "id"
	milvusFieldContent   = "content"
	milvusFieldMetadata  = "metadata"
	milvusFieldEmbedding = "embedding"
	milvusCountField     = "count(*)"
)

// MilvusCollection stores chunks in a Milvus collection with a COSINE HNSW index.
// Metadata is kept in a JSON field and filtered with expressions like metadata["grade"] == 7.
type MilvusCollection struct {
	client    client.Client
	name      string
	dimension int
	logger    *slog.Logger
}

// NewMilvusCollection connects to Milvus and creates and loads the collection if needed.
func NewMilvusCollection(ctx context.Context, config *helper.MilvusConfiguration, collection string, dimension int, logger *slog.Logger) (*MilvusCollection, error) {
	if config == nil {
		return nil, helper.NewError("milvus configuration validation", fmt.Errorf("milvus configuration is nil"))
	}
	if dimension <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", dimension))
	}
	if logger == nil {
		logger = slog.Default()
	}

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:  config.Address,
		Username: config.Username,
		Password: config.Password,
		DBName:   config.Database,
	})
	if err != nil {
		return nil, helper.NewError("milvus client", err)
	}

	c := &MilvusCollection{
		client:    milvusClient,
		name:      collection,
		dimension: dimension,
		logger:    logger,
	}
	if err := c.ensureCollection(ctx); err != nil {
		milvusClient.Close()
		return nil, helper.NewError("ensure collection", err)
	}

	logger.Info("Initialized MilvusCollection", "address", config.Address, "collection", collection)

	return c, nil
}

func (c *MilvusCollection) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: c.name,
		Description:    "syllabus chunks",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       milvusFieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:     milvusFieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       milvusFieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(c.dimension)},
			},
		},
	}
}

func (c *MilvusCollection) ensureCollection(ctx context.Context) error {
	exists, err := c.client.HasCollection(ctx, c.name)
	if err != nil {
		return helper.NewError("has collection", err)
	}

	if !exists {
		if err := c.client.CreateCollection(ctx, c.schema(), entity.DefaultShardNumber); err != nil {
			return helper.NewError("create collection", err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 16, 64)
		if err != nil {
			return helper.NewError("new index", err)
		}
		if err := c.client.CreateIndex(ctx, c.name, milvusFieldEmbedding, index, false); err != nil {
			return helper.NewError("create index", err)
		}
		c.logger.Info("Created milvus collection", "collection", c.name, "dimension", c.dimension)
	}

	if err := c.client.LoadCollection(ctx, c.name, false); err != nil {
		return helper.NewError("load collection", err)
	}
	return nil
}

// Upsert writes the chunks column-wise and flushes the collection.
func (c *MilvusCollection) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids, contents, metadata, embeddings, err := milvusColumns(chunks, c.dimension)
	if err != nil {
		return helper.NewError("columns", err)
	}

	_, err = c.client.Upsert(
		ctx,
		c.name,
		"",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldContent, contents),
		entity.NewColumnJSONBytes(milvusFieldMetadata, metadata),
		entity.NewColumnFloatVector(milvusFieldEmbedding, c.dimension, embeddings),
	)
	if err != nil {
		return helper.NewError("upsert", err)
	}

	if err := c.client.Flush(ctx, c.name, false); err != nil {
		return helper.NewError("flush", err)
	}
	return nil
}

// Query performs a COSINE search. Milvus reports similarity, the chunk distance is 1 - similarity.
func (c *MilvusCollection) Query(ctx context.Context, embedding []float32, limit int, filter model.Metadata) ([]*model.Chunk, error) {
	if limit <= 0 {
		return []*model.Chunk{}, nil
	}

	expr, err := MilvusFilterExpression(filter)
	if err != nil {
		return nil, helper.NewError("filter expression", err)
	}

	searchParam, err := entity.NewIndexHNSWSearchParam(max(64, limit))
	if err != nil {
		return nil, helper.NewError("search param", err)
	}

	searchResults, err := c.client.Search(
		ctx,
		c.name,
		[]string{},
		expr,
		[]string{milvusFieldContent, milvusFieldMetadata},
		[]entity.Vector{entity.FloatVector(embedding)},
		milvusFieldEmbedding,
		entity.COSINE,
		limit,
		searchParam,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, helper.NewError("search", err)
	}
	if len(searchResults) == 0 {
		return []*model.Chunk{}, nil
	}

	result := searchResults[0]
	if result.Err != nil {
		return nil, helper.NewError("search result", result.Err)
	}

	var ids, contents []string
	var metadata [][]byte
	if idColumn, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idColumn.Data()
	}
	for _, field := range result.Fields {
		switch field.Name() {
		case milvusFieldContent:
			if column, ok := field.(*entity.ColumnVarChar); ok {
				contents = column.Data()
			}
		case milvusFieldMetadata:
			if column, ok := field.(*entity.ColumnJSONBytes); ok {
				metadata = column.Data()
			}
		}
	}

	chunks := make([]*model.Chunk, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		if i >= len(ids) || i >= len(contents) || i >= len(metadata) || i >= len(result.Scores) {
			return nil, helper.NewError("search result", fmt.Errorf("incomplete result row %d", i))
		}
		chunk, err := milvusChunk(ids[i], contents[i], metadata[i], result.Scores[i])
		if err != nil {
			return nil, helper.NewError("decode result", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Count returns the number of stored chunks using a count(*) query.
func (c *MilvusCollection) Count(ctx context.Context) (int, error) {
	resultSet, err := c.client.Query(
		ctx,
		c.name,
		[]string{},
		"",
		[]string{milvusCountField},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return 0, helper.NewError("count query", err)
	}

	column, ok := resultSet.GetColumn(milvusCountField).(*entity.ColumnInt64)
	if !ok || len(column.Data()) == 0 {
		return 0, helper.NewError("count query", fmt.Errorf("missing %s column", milvusCountField))
	}
	return int(column.Data()[0]), nil
}

// Reset drops the collection and creates it again empty.
func (c *MilvusCollection) Reset(ctx context.Context) error {
	if err := c.client.DropCollection(ctx, c.name); err != nil {
		return helper.NewError("drop collection", err)
	}
	if err := c.ensureCollection(ctx); err != nil {
		return helper.NewError("ensure collection", err)
	}
	return nil
}

// Close closes the client connection.
func (c *MilvusCollection) Close() error {
	return c.client.Close()
}

func milvusColumns(chunks []*model.Chunk, dimension int) ([]string, []string, [][]byte, [][]float32, error) {
	ids := make([]string, 0, len(chunks))
	contents := make([]string, 0, len(chunks))
	metadata := make([][]byte, 0, len(chunks))
	embeddings := make([][]float32, 0, len(chunks))

	for _, chunk := range chunks {
		if len(chunk.Embedding) != dimension {
			return nil, nil, nil, nil, fmt.Errorf("chunk %s has dimension %d, expected %d", chunk.ID, len(chunk.Embedding), dimension)
		}
		b, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ids = append(ids, chunk.ID.String())
		contents = append(contents, chunk.Text)
		metadata = append(metadata, b)
		embeddings = append(embeddings, chunk.Embedding)
	}

	return ids, contents, metadata, embeddings, nil
}

func milvusChunk(id string, content string, metadata []byte, score float32) (*model.Chunk, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	chunk := &model.Chunk{
		ID:       parsedID,
		Text:     content,
		Distance: 1 - float64(score),
	}
	if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
		return nil, err
	}
	return chunk, nil
}

// MilvusFilterExpression renders an equality filter as a boolean expression over the
// metadata JSON field. Keys are sorted so the expression is stable.
func MilvusFilterExpression(filter model.Metadata) (string, error) {
	if len(filter) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, key := range keys {
		var literal string
		switch v := filter[key].(type) {
		case string:
			literal = strconv.Quote(v)
		case model.Language:
			literal = strconv.Quote(string(v))
		case bool:
			literal = strconv.FormatBool(v)
		case int:
			literal = strconv.Itoa(v)
		case int64:
			literal = strconv.FormatInt(v, 10)
		case float64:
			literal = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return "", fmt.Errorf("unsupported filter value %v of type %T for %q", v, v, key)
		}
		terms = append(terms, fmt.Sprintf("%s[%s] == %s", milvusFieldMetadata, strconv.Quote(key), literal))
	}

	return strings.Join(terms, " && "), nil
}
