package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexOptions(t *testing.T) {
	tests := []struct {
		name    string
		options VectorIndexOptions
		want    string
		wantErr bool
	}{
		{name: "HNSW defaults", options: VectorIndexOptions{Type: VectorIndexHNSW}, want: "hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)"},
		{name: "HNSW custom", options: VectorIndexOptions{Type: VectorIndexHNSW, M: 32, EfConstruction: 128}, want: "hnsw (embedding vector_cosine_ops) WITH (m = 32, ef_construction = 128)"},
		{name: "HNSW ef below 2m", options: VectorIndexOptions{Type: VectorIndexHNSW, M: 32, EfConstruction: 40}, wantErr: true},
		{name: "IVFFlat defaults", options: VectorIndexOptions{Type: VectorIndexIVFFlat}, want: "ivfflat (embedding vector_cosine_ops) WITH (lists = 100)"},
		{name: "IVFFlat negative lists", options: VectorIndexOptions{Type: VectorIndexIVFFlat, Lists: -1}, wantErr: true},
		{name: "Unsupported type", options: VectorIndexOptions{Type: "invalid"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.options.using()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChangeIndexType(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	chunksDbHandler, err := NewChunksDBHandler(database, "index_test", 8, false)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")

	t.Run("Table starts with HNSW", func(t *testing.T) {
		method, err := chunksDbHandler.VectorIndexMethod(ctx)
		require.NoError(t, err)
		assert.Equal(t, VectorIndexHNSW, method)
	})

	tests := []struct {
		name    string
		options VectorIndexOptions
		wantErr string
	}{
		{name: "IVFFlat with custom params", options: VectorIndexOptions{Type: VectorIndexIVFFlat, Lists: 10}},
		{name: "HNSW with custom params", options: VectorIndexOptions{Type: VectorIndexHNSW, M: 32, EfConstruction: 128}},
		{name: "IVFFlat with default params", options: VectorIndexOptions{Type: VectorIndexIVFFlat}},
		{name: "Unsupported index type", options: VectorIndexOptions{Type: "invalid"}, wantErr: "unsupported index type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chunksDbHandler.ChangeIndexType(ctx, tt.options)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			method, err := chunksDbHandler.VectorIndexMethod(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.options.Type, method)
		})
	}

	t.Run("Failed change keeps the previous index", func(t *testing.T) {
		method, err := chunksDbHandler.VectorIndexMethod(ctx)
		require.NoError(t, err)
		assert.Equal(t, VectorIndexIVFFlat, method)
	})

	t.Run("Index change keeps the collection queryable", func(t *testing.T) {
		_, err := chunksDbHandler.Query(ctx, make([]float32, 8), 3, nil)
		require.NoError(t, err)
	})
}
