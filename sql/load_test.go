package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	t.Run("Initialize pgvector extension", func(t *testing.T) {
		err := Init(ctx, db.Instance)
		assert.NoError(t, err)

		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pgvector extension should be created")
	})

	t.Run("Initialize is idempotent", func(t *testing.T) {
		assert.NoError(t, Init(ctx, db.Instance))
		assert.NoError(t, Init(ctx, db.Instance))
	})
}

func TestLoadChunksSql(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	t.Run("Load chunks SQL functions", func(t *testing.T) {
		err := LoadChunksSql(ctx, db.Instance, false)
		assert.NoError(t, err)

		missing, err := MissingFunctions(ctx, db.Instance, ChunksFunctions)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("Load without force is a no-op when present", func(t *testing.T) {
		assert.NoError(t, LoadChunksSql(ctx, db.Instance, false))
	})

	t.Run("Load with force reloads", func(t *testing.T) {
		assert.NoError(t, LoadChunksSql(ctx, db.Instance, true))
	})

	t.Run("Load fails when the source misses a function", func(t *testing.T) {
		set := FunctionSet{
			Name:      "broken",
			Source:    `SELECT 1;`,
			Functions: []string{"function_that_is_never_created"},
		}
		err := Load(ctx, db.Instance, set, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "function_that_is_never_created")
	})

	t.Run("Collection table lifecycle", func(t *testing.T) {
		_, err := db.Instance.Exec(`SELECT init_chunks($1, $2)`, "sql_test_chunks", 4)
		require.NoError(t, err)

		var count int
		err = db.Instance.QueryRow(`SELECT count_chunks($1)`, "sql_test_chunks").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		_, err = db.Instance.Exec(`SELECT drop_chunks($1)`, "sql_test_chunks")
		require.NoError(t, err)

		var tableExists bool
		err = db.Instance.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "sql_test_chunks").Scan(&tableExists)
		require.NoError(t, err)
		assert.False(t, tableExists, "Expected table to be dropped")
	})
}

func TestMissingFunctions(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	t.Run("Reports only undefined functions in order", func(t *testing.T) {
		missing, err := MissingFunctions(ctx, db.Instance, []string{"missing_b", "count_chunks", "missing_a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"missing_b", "missing_a"}, missing)
	})

	t.Run("Empty list", func(t *testing.T) {
		missing, err := MissingFunctions(ctx, db.Instance, nil)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})
}
