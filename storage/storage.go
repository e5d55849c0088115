// Package storage defines the BlobStore contract for persisting
// content-addressed headers and bodies, plus a concrete LevelDB-backed
// implementation using github.com/syndtr/goleveldb (as core/rawdb does
// for its key/value chain data) fronted by a
// github.com/VictoriaMetrics/fastcache read-through cache. BlobStore is
// an external collaborator; it is not required for in-memory-only
// operation.
package storage

import "github.com/odyssey-sync/odyssey/types"

// BlobStore persists opaque, content-addressed blobs: encoded headers
// and bodies, keyed by their HeaderId. Odyssey itself never requires
// persistence to operate (an in-memory-only DAG is a complete, valid
// store), but a BlobStore lets a store survive a process restart.
type BlobStore interface {
	// Put stores blob under key, overwriting any existing value.
	Put(key types.HeaderId, blob []byte) error
	// Get returns the blob stored under key, or ok=false if absent.
	Get(key types.HeaderId) (blob []byte, ok bool, err error)
	// Has reports whether key is present without reading its value.
	Has(key types.HeaderId) (bool, error)
	// Delete removes key, if present.
	Delete(key types.HeaderId) error
	// Close releases any underlying resources.
	Close() error
}
