package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CacheGet implements Store's read-through api_cache lookup. A row past its
// expiry is treated as a miss so the caller re-fetches and overwrites it.
func (s *PostgresStore) CacheGet(ctx context.Context, key string) (APICacheEntry, bool, error) {
	const q = `SELECT cache_key, etag, data, expires_at, created_at FROM api_cache WHERE cache_key = $1`
	row := s.pool.QueryRow(ctx, q, key)

	var entry APICacheEntry
	var data []byte
	if err := row.Scan(&entry.CacheKey, &entry.ETag, &data, &entry.ExpiresAt, &entry.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APICacheEntry{}, false, nil
		}
		return APICacheEntry{}, false, fmt.Errorf("store: cache get %s: %w", key, err)
	}
	entry.Data = json.RawMessage(data)
	if time.Now().After(entry.ExpiresAt) {
		return APICacheEntry{}, false, nil
	}
	return entry, true, nil
}

// CachePut implements Store, upserting by cache_key.
func (s *PostgresStore) CachePut(ctx context.Context, entry APICacheEntry) error {
	data := entry.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	const q = `
		INSERT INTO api_cache (cache_key, etag, data, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			etag = EXCLUDED.etag, data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, q, entry.CacheKey, entry.ETag, data, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: cache put %s: %w", entry.CacheKey, err)
	}
	return nil
}
