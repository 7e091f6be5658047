// internal/repository/sqlite/cache_repo.go
package sqlite

import (
	"context"
	"time"
)

// CacheRepository persists key/value/expiry rows so computed aggregates
// survive process restarts. Expired rows are swept during Initialize.
type CacheRepository struct {
	store *Store
}

func NewCacheRepository(store *Store) *CacheRepository {
	return &CacheRepository{store: store}
}

// Get returns the cached value, or ok=false when absent or expired.
func (r *CacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	row, err := r.store.GetOne(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return "", false, err
	}
	if row == nil {
		return "", false, nil
	}
	if asString(row["expires_at"]) < nowISO() {
		_, _ = r.store.Run(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
		return "", false, nil
	}
	return asString(row["value"]), true, nil
}

// Set stores a value with the given time to live.
func (r *CacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl).Format(timeLayout)
	return r.store.Exec(ctx,
		"INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at",
		key, value, expires)
}

// Delete drops the given keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := r.store.Run(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
			return err
		}
	}
	return nil
}
