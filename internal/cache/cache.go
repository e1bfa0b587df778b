// Package cache implements the durable tarball cache: a record of
// (name, version) pairs whose tarball has previously been written,
// persisted across process restarts in a BoltDB file.
package cache

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTarballs = []byte("tarballs")

// Cache is a durable key-value record of downloaded (name, version)
// pairs. It records only intent-of-presence: callers tolerate a stale
// positive (the on-disk tarball was deleted out of band) by treating a
// missed download as a non-fatal per-item failure.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB file at path and ensures the tarball
// bucket exists.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open tarball cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTarballs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tarball bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close flushes and closes the underlying database. Called at the end of
// every orchestrator invocation.
func (c *Cache) Close() error {
	return c.db.Close()
}

func key(name, version string) []byte {
	return []byte(name + "@" + version)
}

// Exists reports whether (name, version) was previously recorded as
// downloaded.
func (c *Cache) Exists(name, version string) (bool, error) {
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTarballs).Get(key(name, version))
		found = v != nil
		return nil
	})
	return found, err
}

// Add records (name, version) as downloaded. Called only after a
// successful tarball write.
func (c *Cache) Add(name, version string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTarballs).Put(key(name, version), []byte{1})
	})
}
