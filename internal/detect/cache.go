// Package detect — cache.go
//
// DetectionCache is the interface for the cross-session model detection
// cache. It stores content-hash → detected spans mappings that survive
// process restarts, so a leaf seen in an earlier run gets its model
// detections without a model round trip.
//
// Two implementations are provided:
//   - memoryCache  — in-memory only, used in tests and when no path is configured.
//   - bboltCache   — embedded key-value store (bbolt), used in production.
//
// Entries are written once per distinct leaf text and read on every
// subsequent occurrence. Batch operations and iteration are not needed.
package detect

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// DetectionCache is the cross-session model detection cache interface.
// All implementations must be safe for concurrent use.
type DetectionCache interface {
	// Get returns the cached spans for the given content hash, if present.
	Get(key string) (spans []Span, ok bool)

	// Set stores key → spans. Overwrites any existing entry silently.
	// An empty slice is a valid entry: it records that the model found nothing.
	Set(key string, spans []Span)

	// Delete removes key from the cache. A no-op if the key is absent.
	Delete(key string)

	// Close releases any resources held by the cache (e.g. file handles).
	Close() error
}

// NewCache returns a DetectionCache. With a non-empty path the entries are
// persisted in a bbolt file and bounded by an S3-FIFO eviction layer of the
// given capacity; with an empty path a plain in-memory cache is returned.
func NewCache(path string, capacity int) (DetectionCache, error) {
	if path == "" {
		return newMemoryCache(), nil
	}
	backing, err := newBboltCache(path)
	if err != nil {
		return nil, err
	}
	return newS3FIFOCache(backing, capacity), nil
}

// --- memoryCache ---------------------------------------------------------

// memoryCache is a thread-safe in-memory DetectionCache.
type memoryCache struct {
	mu    sync.RWMutex
	store map[string][]Span
}

func newMemoryCache() DetectionCache {
	return &memoryCache{store: make(map[string][]Span)}
}

func (c *memoryCache) Get(key string) ([]Span, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key string, spans []Span) {
	c.mu.Lock()
	c.store[key] = spans
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- bboltCache ----------------------------------------------------------

const bboltBucket = "ner_detections"

// bboltCache is a DetectionCache backed by an embedded bbolt database.
// Spans are stored as JSON arrays keyed by content hash. Entries survive
// process restarts. The database file is created at the given path if it
// does not exist.
type bboltCache struct {
	db *bolt.DB
}

// newBboltCache opens (or creates) the bbolt database at path and ensures
// the bucket exists. Returns an error if the file cannot be opened.
func newBboltCache(path string) (DetectionCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt cache %q: %w", path, err)
	}

	// Ensure the bucket exists.
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bboltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}

	log.Printf("[DETECT] detection cache opened at %s", path)
	return &bboltCache{db: db}, nil
}

func (c *bboltCache) Get(key string) ([]Span, bool) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		log.Printf("[DETECT] bbolt Get error: %v", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var spans []Span
	if err := json.Unmarshal(raw, &spans); err != nil {
		log.Printf("[DETECT] bbolt entry decode error: %v", err)
		return nil, false
	}
	return spans, true
}

func (c *bboltCache) Set(key string, spans []Span) {
	if spans == nil {
		spans = []Span{} // keep "model found nothing" distinct from "absent"
	}
	raw, err := json.Marshal(spans)
	if err != nil {
		log.Printf("[DETECT] bbolt entry encode error: %v", err)
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", bboltBucket)
		}
		return b.Put([]byte(key), raw)
	}); err != nil {
		log.Printf("[DETECT] bbolt Set error: %v", err)
	}
}

func (c *bboltCache) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		log.Printf("[DETECT] bbolt Delete error: %v", err)
	}
}

func (c *bboltCache) Close() error {
	return c.db.Close()
}
