package sql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

//go:embed init.sql
var initSQL string

//go:embed chunks.sql
var chunksSQL string

// FunctionSet is an embedded SQL source together with the functions it has to define.
type FunctionSet struct {
	Name      string
	Source    string
	Functions []string
}

var ChunksFunctions = []string{
	"init_chunks",
	"upsert_chunk",
	"select_chunks_by_similarity",
	"count_chunks",
	"drop_chunks",
}

// Chunks holds the per-collection table functions.
var Chunks = FunctionSet{
	Name:      "chunks",
	Source:    chunksSQL,
	Functions: ChunksFunctions,
}

// Init creates the vector extension.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, initSQL)
	if err != nil {
		return fmt.Errorf("error executing init SQL: %w", err)
	}
	return nil
}

// LoadChunksSql loads the chunk functions.
func LoadChunksSql(ctx context.Context, db *sql.DB, force bool) error {
	return Load(ctx, db, Chunks, force)
}

// Load executes the source of set unless all of its functions exist already.
// With force the source is executed in any case.
func Load(ctx context.Context, db *sql.DB, set FunctionSet, force bool) error {
	if !force {
		missing, err := MissingFunctions(ctx, db, set.Functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", set.Name, err)
		}
		if len(missing) == 0 {
			return nil
		}
	}

	_, err := db.ExecContext(ctx, set.Source)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", set.Name, err)
	}

	missing, err := MissingFunctions(ctx, db, set.Functions)
	if err != nil {
		return fmt.Errorf("error checking loaded %s functions: %w", set.Name, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s SQL did not create functions: %s", set.Name, strings.Join(missing, ", "))
	}
	return nil
}

// MissingFunctions returns the names out of functions that are not defined in the database,
// in the order they were given.
func MissingFunctions(ctx context.Context, db *sql.DB, functions []string) ([]string, error) {
	if len(functions) == 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT proname FROM pg_proc WHERE proname = ANY($1);`, pq.Array(functions))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, f := range functions {
		if !found[f] {
			missing = append(missing, f)
		}
	}
	return missing, nil
}
