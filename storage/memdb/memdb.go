// Package memdb is a minimal in-memory storage.Store, used where this
// module needs a concrete backing store — tests, examples, or an
// embedder that has not wired a real persistent engine yet.
package memdb

import (
	"sync"

	"github.com/concretevm/liveobject/storage"
)

// DB is a mutex-guarded, in-memory storage.Store.
type DB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty DB.
func New() *DB {
	return &DB{data: make(map[string][]byte)}
}

func (db *DB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.data[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (db *DB) GetOpt(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (db *DB) Set(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *DB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

var _ storage.Store = (*DB)(nil)
