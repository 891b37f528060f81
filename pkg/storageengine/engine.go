// Package storageengine defines the Engine contract a local store
// implementation must satisfy: byte-oriented key/value storage with
// ordered range scans and a changelog-driven restore path.
package storageengine

import "io"

// Engine is a byte-oriented key/value store backing one task store
// instance. Keys and values are opaque bytes; the engine neither
// encodes nor decodes them.
type Engine interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Range iterates keys in [start, end) in ascending order, calling fn
	// for each. Iteration stops early if fn returns false. A nil end
	// means "no upper bound".
	Range(start, end []byte, fn func(key, value []byte) bool) error

	// Flush forces buffered writes to durable storage.
	Flush() error

	Close() error
}

// ChangelogEntry is one record read back from a changelog stream
// during restore, already key/value decoded to bytes. A nil Value
// denotes a tombstone (the key was deleted).
type ChangelogEntry struct {
	Key   []byte
	Value []byte
}

// Restorer is implemented by an Engine that can bulk-load changelog
// entries more efficiently than individual Put calls (e.g. inside a
// single transaction). ApplyChangelog falls back to looping Put/Delete
// when an Engine doesn't implement it.
type Restorer interface {
	Restore(entries <-chan ChangelogEntry) error
}

// ApplyChangelog replays entries onto e, using e's Restorer
// fast path when available.
func ApplyChangelog(e Engine, entries <-chan ChangelogEntry) error {
	if r, ok := e.(Restorer); ok {
		return r.Restore(entries)
	}
	for entry := range entries {
		if entry.Value == nil {
			if err := e.Delete(entry.Key); err != nil {
				return err
			}
			continue
		}
		if err := e.Put(entry.Key, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

var _ io.Closer = Engine(nil)
