package storage

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/odyssey-sync/odyssey/types"
)

// LevelDBBlobStore is a BlobStore backed by a goleveldb database with a
// fastcache read-through cache in front of it, mirroring core/rawdb's
// freezer+cache layering: reads check the cache first and populate it
// on a miss; writes go to the database and invalidate (here, simply
// overwrite) the cached entry.
type LevelDBBlobStore struct {
	db    *leveldb.DB
	cache *fastcache.Cache
}

// OpenLevelDBBlobStore opens (creating if absent) a LevelDB database at
// dir, fronted by an in-memory cache sized cacheBytes.
func OpenLevelDBBlobStore(dir string, cacheBytes int) (*LevelDBBlobStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb at %s: %w", dir, err)
	}
	return &LevelDBBlobStore{
		db:    db,
		cache: fastcache.New(cacheBytes),
	}, nil
}

func (s *LevelDBBlobStore) Put(key types.HeaderId, blob []byte) error {
	if err := s.db.Put(key[:], blob, nil); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	s.cache.Set(key[:], blob)
	return nil
}

func (s *LevelDBBlobStore) Get(key types.HeaderId) ([]byte, bool, error) {
	if cached, ok := s.cache.HasGet(nil, key[:]); ok {
		return cached, true, nil
	}

	blob, err := s.db.Get(key[:], nil)
	if err != nil {
		if err == leveldb.ErrNotFound || errors.IsCorrupted(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	s.cache.Set(key[:], blob)
	return blob, true, nil
}

func (s *LevelDBBlobStore) Has(key types.HeaderId) (bool, error) {
	if s.cache.Has(key[:]) {
		return true, nil
	}
	ok, err := s.db.Has(key[:], nil)
	if err != nil {
		return false, fmt.Errorf("storage: has %s: %w", key, err)
	}
	return ok, nil
}

func (s *LevelDBBlobStore) Delete(key types.HeaderId) error {
	if err := s.db.Delete(key[:], nil); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	s.cache.Del(key[:])
	return nil
}

func (s *LevelDBBlobStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

var _ BlobStore = (*LevelDBBlobStore)(nil)
