package storageengine

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketData = []byte("data")

// BoltEngine is a bbolt-backed Engine rooted at one file per
// store/partition: <working-dir>/state/<storeName>/<partition>/store.db.
// All keys for the store's single logical bucket live in bucketData.
type BoltEngine struct {
	db *bolt.DB
}

// OpenBoltEngine opens (creating if necessary) the store.db file under
// dir, which the caller has already resolved to the store's
// per-partition directory.
func OpenBoltEngine(dir string) (*BoltEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storageengine: create dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "store.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storageengine: open %s: %w", dbPath, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketData)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storageengine: create bucket: %w", err)
	}

	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) Get(key []byte) ([]byte, error) {
	var value []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get(key)
		if v == nil {
			return nil
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	return value, err
}

func (e *BoltEngine) Put(key, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put(key, value)
	})
}

func (e *BoltEngine) Delete(key []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Delete(key)
	})
}

func (e *BoltEngine) Range(start, end []byte, fn func(key, value []byte) bool) error {
	return e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if end != nil && string(k) >= string(end) {
				break
			}
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

// Flush is a no-op: bbolt commits each Update transaction to disk
// synchronously, so there is no buffered state to force out.
func (e *BoltEngine) Flush() error { return nil }

func (e *BoltEngine) Close() error {
	return e.db.Close()
}

// Restore loads a changelog into the store inside a single bbolt
// transaction, far cheaper than one commit per key during a cold
// restart restoring a large store.
func (e *BoltEngine) Restore(entries <-chan ChangelogEntry) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketData)
		for entry := range entries {
			if entry.Value == nil {
				if err := b.Delete(entry.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(entry.Key, entry.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Engine = (*BoltEngine)(nil)
var _ Restorer = (*BoltEngine)(nil)
