package registry

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrCacheMiss is returned when no fresh cache entry exists for a model.
var ErrCacheMiss = errors.New("registry cache miss")

// Cache is a Badger-backed resolution cache. Entries expire after a TTL
// so catalog updates are picked up without manual invalidation.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// cacheEntry is the stored form of a resolution.
type cacheEntry struct {
	Package    *ModelPackage `json:"package"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// OpenCache opens or creates a resolution cache at the given path.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached package for a model ID, or ErrCacheMiss when the
// entry is absent or stale.
func (c *Cache) Get(id string) (*ModelPackage, error) {
	var entry cacheEntry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 && time.Since(entry.ResolvedAt) > c.ttl {
		return nil, ErrCacheMiss
	}
	return entry.Package, nil
}

// Put stores a resolved package.
func (c *Cache) Put(id string, pkg *ModelPackage) error {
	value, err := json.Marshal(cacheEntry{
		Package:    pkg,
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), value)
	})
}

// Invalidate removes a cached resolution.
func (c *Cache) Invalidate(id string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
}
