package database

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/syllabus/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(text string, grade int, embedding []float32) *model.Chunk {
	return &model.Chunk{
		ID:   uuid.New(),
		Text: text,
		Metadata: model.ChunkMetadata{
			Grade:        grade,
			Subject:      "Science",
			ChapterNo:    1,
			ChapterTitle: "Heat",
			Topic:        "Conduction of Heat",
			Language:     model.LanguageEnglish,
			Difficulty:   model.DefaultDifficulty,
			Keywords:     "heat, conduction",
		},
		Embedding: embedding,
	}
}

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		chunksDbHandler, err := NewChunksDBHandler(database, "handler_test", 3, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		assert.Equal(t, "chunks_handler_test", chunksDbHandler.Table())
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, "handler_test", 3, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})

	t.Run("Invalid call NewChunksDBHandler with zero dimension", func(t *testing.T) {
		_, err := NewChunksDBHandler(database, "handler_test", 0, false)
		assert.Error(t, err, "Expected error for zero dimension")
	})
}

func TestChunksUpsertAndQuery(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	chunksDbHandler, err := NewChunksDBHandler(database, "upsert_test", 3, false)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
	require.NoError(t, chunksDbHandler.Reset(ctx))

	first := testChunk("Heat flows from hot to cold.", 7, []float32{1, 0, 0})
	second := testChunk("Plants make food by photosynthesis.", 8, []float32{0, 1, 0})

	t.Run("Upsert chunks", func(t *testing.T) {
		err := chunksDbHandler.Upsert(ctx, []*model.Chunk{first, second})
		require.NoError(t, err, "Expected Upsert to not return an error")

		count, err := chunksDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "Expected two stored chunks")
	})

	t.Run("Upsert existing id overwrites", func(t *testing.T) {
		updated := *first
		updated.Text = "Heat flows from a hotter body to a colder body."
		err := chunksDbHandler.Upsert(ctx, []*model.Chunk{&updated})
		require.NoError(t, err)

		count, err := chunksDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "Expected upsert by id to not add a row")
	})

	t.Run("Upsert with wrong dimension fails", func(t *testing.T) {
		err := chunksDbHandler.Upsert(ctx, []*model.Chunk{testChunk("short", 7, []float32{1})})
		assert.Error(t, err, "Expected dimension mismatch error")
	})

	t.Run("Query without filter orders by distance", func(t *testing.T) {
		results, err := chunksDbHandler.Query(ctx, []float32{1, 0.1, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, first.ID, results[0].ID, "Expected the closest chunk first")
		assert.Equal(t, "Heat flows from a hotter body to a colder body.", results[0].Text)
		assert.Equal(t, "Science", results[0].Metadata.Subject)
		assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	})

	t.Run("Query with grade filter", func(t *testing.T) {
		results, err := chunksDbHandler.Query(ctx, []float32{1, 0, 0}, 10, model.Metadata{"grade": 8})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, second.ID, results[0].ID)
	})

	t.Run("Query with zero limit", func(t *testing.T) {
		results, err := chunksDbHandler.Query(ctx, []float32{1, 0, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Reset empties the collection", func(t *testing.T) {
		require.NoError(t, chunksDbHandler.Reset(ctx))

		count, err := chunksDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		err = chunksDbHandler.Upsert(ctx, []*model.Chunk{testChunk("after reset", 7, []float32{0, 0, 1})})
		assert.NoError(t, err, "Expected the recreated table to accept writes")
	})
}

func TestChunksQueryFilterOverManyGrades(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	chunksDbHandler, err := NewChunksDBHandler(database, "many_grades_test", 3, false)
	require.NoError(t, err)
	require.NoError(t, chunksDbHandler.Reset(ctx))

	random := rand.New(rand.NewSource(7))
	chunks := []*model.Chunk{}
	for grade := 1; grade <= 12; grade++ {
		for i := 0; i < 40; i++ {
			embedding := []float32{random.Float32() + 0.01, random.Float32(), random.Float32()}
			chunks = append(chunks, testChunk(fmt.Sprintf("grade %d chunk %d", grade, i), grade, embedding))
		}
	}
	require.NoError(t, chunksDbHandler.Upsert(ctx, chunks))

	results, err := chunksDbHandler.Query(ctx, []float32{1, 0.5, 0.25}, 10, model.Metadata{"grade": 7})
	require.NoError(t, err)
	require.Len(t, results, 10, "Expected the filter to be filled from a single grade")
	for i, result := range results {
		assert.Equal(t, 7, result.Metadata.Grade)
		if i > 0 {
			assert.LessOrEqual(t, results[i-1].Distance, result.Distance, "Expected ascending distance")
		}
	}
}
