package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

const scanBucketName = "scans"

// Cache stores scan results keyed by the receipt's content hash
type Cache interface {
	// Get returns the cached data for key, or nil if there is none
	Get(key string) (*ReceiptData, error)

	// Put stores data under key
	Put(key string, data *ReceiptData) error

	// Close closes the underlying store
	Close() error
}

// BoltCache implements Cache using BoltDB
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache opens (or creates) a cache file at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(scanBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltCache{db: db}, nil
}

// Get retrieves cached scan data
func (b *BoltCache) Get(key string) (*ReceiptData, error) {
	var data *ReceiptData
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(scanBucketName)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &data)
	})
	if err != nil {
		return nil, fmt.Errorf("reading cached scan %s: %w", key, err)
	}
	return data, nil
}

// Put saves scan data
func (b *BoltCache) Put(key string, data *ReceiptData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling scan: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scanBucketName)).Put([]byte(key), raw)
	})
}

// Close closes the database
func (b *BoltCache) Close() error {
	return b.db.Close()
}

// CachedScanner skips the model call for receipts it has already scanned.
// Uploading the same photo twice (a retry, a second session for the same
// dinner) then costs nothing and returns identical lines.
type CachedScanner struct {
	next  Scanner
	cache Cache
}

// NewCachedScanner wraps next with cache
func NewCachedScanner(next Scanner, cache Cache) *CachedScanner {
	return &CachedScanner{next: next, cache: cache}
}

// cacheKey hashes the content type together with the bytes
func cacheKey(imageData []byte, contentType string) string {
	h := sha256.New()
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	h.Write(imageData)
	return hex.EncodeToString(h.Sum(nil))
}

// ScanReceipt returns the cached result when present, otherwise scans and
// stores the result. Cache failures are logged and never fail the scan.
func (c *CachedScanner) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	key := cacheKey(imageData, contentType)

	cached, err := c.cache.Get(key)
	if err != nil {
		slog.Warn("Scan cache read failed", "key", key, "error", err)
	} else if cached != nil {
		slog.Debug("Scan cache hit", "key", key, "items", len(cached.Items))
		return cached, nil
	}

	data, err := c.next.ScanReceipt(ctx, imageData, contentType)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(key, data); err != nil {
		slog.Warn("Scan cache write failed", "key", key, "error", err)
	}
	return data, nil
}

// Close closes the wrapped scanner and the cache
func (c *CachedScanner) Close() error {
	scanErr := c.next.Close()
	if err := c.cache.Close(); err != nil {
		return fmt.Errorf("closing scan cache: %w", err)
	}
	return scanErr
}
