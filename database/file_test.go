package database

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/siherrmann/syllabus/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCollectionNew(t *testing.T) {
	t.Run("Valid call NewFileCollection creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "index")
		c, err := NewFileCollection(dir, "syllabus", "test-model", 3)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "syllabus.gob.gz"), c.Path())

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("In-memory collection has no path", func(t *testing.T) {
		c, err := NewMemoryCollection("syllabus", "test-model", 3)
		require.NoError(t, err)
		assert.Empty(t, c.Path())
	})

	t.Run("Invalid arguments", func(t *testing.T) {
		_, err := NewFileCollection(t.TempDir(), "", "test-model", 3)
		assert.Error(t, err, "Expected error for empty collection name")

		_, err = NewFileCollection(t.TempDir(), "syllabus", "test-model", 0)
		assert.Error(t, err, "Expected error for zero dimension")
	})
}

func TestFileCollectionPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewFileCollection(dir, "syllabus", "test-model", 3)
	require.NoError(t, err)

	chunk := testChunk("Heat flows from hot to cold.", 7, []float32{1, 0, 0})
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{chunk}))

	t.Run("Reopen with same model reads records", func(t *testing.T) {
		reopened, err := NewFileCollection(dir, "syllabus", "test-model", 3)
		require.NoError(t, err)

		count, err := reopened.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		results, err := reopened.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, chunk.ID, results[0].ID)
		assert.Equal(t, chunk.Metadata, results[0].Metadata)
	})

	t.Run("Reopen with another model fails", func(t *testing.T) {
		_, err := NewFileCollection(dir, "syllabus", "other-model", 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrModelMismatch)
	})

	t.Run("Reopen with another dimension fails", func(t *testing.T) {
		_, err := NewFileCollection(dir, "syllabus", "test-model", 4)
		assert.ErrorIs(t, err, ErrModelMismatch)
	})

	t.Run("Reset persists the empty collection", func(t *testing.T) {
		require.NoError(t, c.Reset(ctx))

		reopened, err := NewFileCollection(dir, "syllabus", "test-model", 3)
		require.NoError(t, err)
		count, err := reopened.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestFileCollectionQuery(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCollection("syllabus", "test-model", 3)
	require.NoError(t, err)

	near := testChunk("near", 7, []float32{1, 0, 0})
	middle := testChunk("middle", 7, []float32{1, 1, 0})
	far := testChunk("far", 8, []float32{0, 0, 1})
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{far, middle, near}))

	t.Run("Results ordered by ascending distance", func(t *testing.T) {
		results, err := c.Query(ctx, []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "near", results[0].Text)
		assert.Equal(t, "middle", results[1].Text)
		assert.Equal(t, "far", results[2].Text)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
		assert.InDelta(t, 1-1/math.Sqrt2, results[1].Distance, 1e-6)
		assert.InDelta(t, 1, results[2].Distance, 1e-6)
	})

	t.Run("Limit caps results", func(t *testing.T) {
		results, err := c.Query(ctx, []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("Grade filter", func(t *testing.T) {
		results, err := c.Query(ctx, []float32{1, 0, 0}, 10, model.Metadata{"grade": 8})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "far", results[0].Text)
	})

	t.Run("Filter on unknown field matches nothing", func(t *testing.T) {
		results, err := c.Query(ctx, []float32{1, 0, 0}, 10, model.Metadata{"board": "cbse"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Zero limit", func(t *testing.T) {
		results, err := c.Query(ctx, []float32{1, 0, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Wrong query dimension", func(t *testing.T) {
		_, err := c.Query(ctx, []float32{1, 0}, 10, nil)
		assert.Error(t, err)
	})

	t.Run("Upsert overwrites by id", func(t *testing.T) {
		updated := *near
		updated.Text = "nearest"
		require.NoError(t, c.Upsert(ctx, []*model.Chunk{&updated}))

		count, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		results, err := c.Query(ctx, []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "nearest", results[0].Text)
	})

	t.Run("Upsert with wrong dimension writes nothing", func(t *testing.T) {
		err := c.Upsert(ctx, []*model.Chunk{testChunk("ok", 7, []float32{0, 1, 0}), testChunk("bad", 7, []float32{1})})
		assert.Error(t, err)

		count, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Query(canceled, []float32{1, 0, 0}, 10, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFileCollectionFailedWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewFileCollection(dir, "blocked", "test-model", 3)
	require.NoError(t, err)

	original := testChunk("original", 7, []float32{1, 0, 0})
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{original}))

	// A non-empty directory at the collection path makes the rename fail.
	require.NoError(t, os.Remove(c.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(c.Path(), "occupied"), 0750))

	t.Run("Failed upsert keeps the previous records", func(t *testing.T) {
		updated := *original
		updated.Text = "updated"
		err := c.Upsert(ctx, []*model.Chunk{&updated, testChunk("added", 7, []float32{0, 1, 0})})
		require.Error(t, err)

		count, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		results, err := c.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "original", results[0].Text)
	})

	t.Run("Failed reset keeps the previous records", func(t *testing.T) {
		require.Error(t, c.Reset(ctx))

		count, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestFileCollectionUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCollection("syllabus", "test-model", 3)
	require.NoError(t, err)

	chunk := testChunk("first", 7, []float32{1, 0, 0})
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{chunk}))
	first, err := c.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	updated := *chunk
	updated.Text = "second"
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{&updated}))
	second, err := c.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, "second", second[0].Text)
	assert.True(t, first[0].CreatedAt.Equal(second[0].CreatedAt))
}

func TestFileCollectionZeroQuery(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCollection("syllabus", "test-model", 3)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(ctx, []*model.Chunk{testChunk("near", 7, []float32{1, 0, 0})}))

	results, err := c.Query(ctx, []float32{0, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemWhere(t *testing.T) {
	where, err := chromemWhere(model.Metadata{"grade": 7, "language": model.LanguageEnglish, "chapter_no": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"grade": "7", "language": "en", "chapter_no": "3"}, where)

	where, err = chromemWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, where)

	_, err = chromemWhere(model.Metadata{"grade": []int{7}})
	assert.Error(t, err)
}
