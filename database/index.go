package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/syllabus/helper"
)

const (
	VectorIndexHNSW    = "hnsw"
	VectorIndexIVFFlat = "ivfflat"
)

// VectorIndexOptions describes the pgvector index on the embedding column.
// Zero values fall back to pgvector's defaults (m 16, ef_construction 64, lists 100).
type VectorIndexOptions struct {
	Type           string
	M              int
	EfConstruction int
	Lists          int
}

func (o VectorIndexOptions) using() (string, error) {
	switch o.Type {
	case VectorIndexHNSW:
		m, ef := o.M, o.EfConstruction
		if m == 0 {
			m = 16
		}
		if ef == 0 {
			ef = 64
		}
		if m < 2 || ef < 2*m {
			return "", fmt.Errorf("invalid hnsw parameters m=%d ef_construction=%d", m, ef)
		}
		return fmt.Sprintf(`hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, m, ef), nil
	case VectorIndexIVFFlat:
		lists := o.Lists
		if lists == 0 {
			lists = 100
		}
		if lists < 1 {
			return "", fmt.Errorf("invalid ivfflat lists=%d", lists)
		}
		return fmt.Sprintf(`ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists), nil
	default:
		return "", fmt.Errorf("unsupported index type: %q (use %q or %q)", o.Type, VectorIndexHNSW, VectorIndexIVFFlat)
	}
}

func (h *ChunksDBHandler) vectorIndexName() string {
	return h.table + "_embedding_idx"
}

// ChangeIndexType replaces the vector index of the collection table in one transaction,
// so a failed build keeps the previous index.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, options VectorIndexOptions) error {
	using, err := options.using()
	if err != nil {
		return helper.NewError("index options", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin", err)
	}
	defer tx.Rollback()

	indexName := pq.QuoteIdentifier(h.vectorIndexName())
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, indexName)); err != nil {
		return helper.NewError("drop index", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX %s ON %s USING %s;`, indexName, pq.QuoteIdentifier(h.table), using)); err != nil {
		return helper.NewError("create index", err)
	}
	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	h.db.Logger.Info("Changed vector index", "table", h.table, "type", options.Type, "using", using)

	return nil
}

// VectorIndexMethod returns the access method (hnsw or ivfflat) of the collection's vector index.
func (h *ChunksDBHandler) VectorIndexMethod(ctx context.Context) (string, error) {
	var method string
	err := h.db.Instance.QueryRowContext(ctx, `
		SELECT am.amname
		FROM pg_class c
		JOIN pg_am am ON am.oid = c.relam
		WHERE c.relname = $1 AND c.relkind = 'i';`,
		h.vectorIndexName(),
	).Scan(&method)
	if err != nil {
		return "", helper.NewError("select index method", err)
	}
	return method, nil
}
