// Package store is a Postgres-and-pgvector persistence layer combining
// per-source processing state with the speaker-attributed,
// embedding-indexed segments derived from it.
//
// PostgresStore is the sole writer of both tables; replace_segments is the
// idempotence anchor — re-ingesting a source deletes its prior segments and
// rewrites them inside one transaction. Status transitions are
// single-statement atomic writes, and the claim step that advances a source
// out of "pending" uses a conditional UPDATE so two orchestrator workers
// can never claim the same row.
//
// Store is the narrow interface the orchestrator and stage handlers depend
// on; MemoryStore is a fake satisfying it for unit tests that don't need a
// database.
package store
