package inspect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketFiles = []byte("files")

// cacheRecord is one cached result, valid while the file keeps the same
// size and modification time.
type cacheRecord struct {
	ModTime int64           `json:"mtime"`
	Size    int64           `json:"size"`
	Value   json.RawMessage `json:"value"`
}

// Cache stores per-file inspection results in a bbolt database.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens or creates the cache database at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open inspection cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize inspection cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get decodes the cached value for key into v. It reports false when there
// is no record or the record was made for a different version of the file.
func (c *Cache) Get(key string, info os.FileInfo, v interface{}) bool {
	var rec cacheRecord
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found || rec.ModTime != info.ModTime().UnixNano() || rec.Size != info.Size() {
		return false
	}
	return json.Unmarshal(rec.Value, v) == nil
}

// Put stores v for key, stamped with the file's current size and mtime.
func (c *Cache) Put(key string, info os.FileInfo, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cacheRecord{
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
		Value:   value,
	})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(key), data)
	})
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFiles).Stats().KeyN
		return nil
	})
	return n
}
