package store

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// defaultEmbeddingDim matches the default embedding_dimension config value;
// the vector column needs a concrete dimension for the ivfflat index.
const defaultEmbeddingDim = 1536

// EnsureSchema applies the sources/segments/api_cache DDL with the
// deployment's embedding dimension baked into the vector column. It is safe
// to call on every startup: every statement is guarded with IF NOT EXISTS.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	dim := s.embeddingDim
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	ddl := strings.ReplaceAll(schemaSQL, "{{embedding_dim}}", strconv.Itoa(dim))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// EnsureVectorIndex lazily creates the ivfflat approximate-nearest-neighbour
// index over segments.embedding once enough rows exist to make the heuristic
// list count meaningful. Re-running is a no-op: the index name is stable and
// creation is guarded with IF NOT EXISTS.
//
// lists is tuned as max(100, sqrt(row_count)) per the segment store contract;
// Postgres does not let an index definition reference a variable, so the
// count is read first and the CREATE INDEX statement is built with it
// inlined.
func (s *PostgresStore) EnsureVectorIndex(ctx context.Context) error {
	const minRows = 1000

	var rowCount int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM segments WHERE embedding IS NOT NULL`).Scan(&rowCount); err != nil {
		return fmt.Errorf("store: count embedded segments: %w", err)
	}
	if rowCount < minRows {
		return nil
	}

	lists := listsForRowCount(rowCount)
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_segments_embedding ON segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
		lists,
	)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("store: create vector index: %w", err)
	}
	return nil
}

func listsForRowCount(rowCount int64) int {
	lists := int(isqrt(rowCount))
	if lists < 100 {
		lists = 100
	}
	return lists
}

func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
