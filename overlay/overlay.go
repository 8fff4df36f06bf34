// Package overlay implements the per-batch write-through cache that
// isolates one message batch's storage mutations from the backing
// store until they are committed atomically.
package overlay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/concretevm/liveobject/storage"
)

// Cache is a write-through, tombstoned overlay over a storage.Store. A
// single Cache is shared by every host call produced by one message
// batch; it is safe for concurrent readers and serializes writers with
// two independent locks, one per underlying map, updated together under
// their writer locks so buffer and tombstones never both hold the same
// key.
type Cache struct {
	backing storage.Store

	bufferMu sync.RWMutex
	buffer   map[string][]byte

	tombstoneMu sync.RWMutex
	tombstones  map[string]struct{}
}

// New wraps backing in a fresh, empty overlay.
func New(backing storage.Store) *Cache {
	return &Cache{
		backing:    backing,
		buffer:     make(map[string][]byte),
		tombstones: make(map[string]struct{}),
	}
}

func (c *Cache) isTombstoned(key string) bool {
	c.tombstoneMu.RLock()
	defer c.tombstoneMu.RUnlock()
	_, ok := c.tombstones[key]
	return ok
}

func (c *Cache) bufferedValue(key string) ([]byte, bool) {
	c.bufferMu.RLock()
	defer c.bufferMu.RUnlock()
	v, ok := c.buffer[key]
	return v, ok
}

// memoize records a value read through from backing storage, same as a
// Set but without clearing a tombstone that cannot exist for a key that
// was just read through (buffer and tombstones are always disjoint).
func (c *Cache) memoize(key string, value []byte) {
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.buffer[key] = value
}

// Has reports whether the effective view (tombstones shadowing the
// buffer-overlay over backing) contains key.
func (c *Cache) Has(key []byte) (bool, error) {
	sk := string(key)
	if c.isTombstoned(sk) {
		return false, nil
	}
	if _, ok := c.bufferedValue(sk); ok {
		return true, nil
	}
	value, ok, err := c.backing.GetOpt(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.memoize(sk, value)
	return true, nil
}

// Get returns the value for key. A tombstoned key fails with
// storage.ErrNotFound even if the backing store still holds a value for
// it — the tombstone supersedes.
func (c *Cache) Get(key []byte) ([]byte, error) {
	sk := string(key)
	if c.isTombstoned(sk) {
		return nil, storage.ErrNotFound
	}
	if v, ok := c.bufferedValue(sk); ok {
		return v, nil
	}
	value, err := c.backing.Get(key)
	if err != nil {
		return nil, err
	}
	c.memoize(sk, value)
	return value, nil
}

// GetOpt is Get without the error for a missing key.
func (c *Cache) GetOpt(key []byte) ([]byte, bool, error) {
	sk := string(key)
	if c.isTombstoned(sk) {
		return nil, false, nil
	}
	if v, ok := c.bufferedValue(sk); ok {
		return v, true, nil
	}
	value, ok, err := c.backing.GetOpt(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	c.memoize(sk, value)
	return value, true, nil
}

// Set overwrites key with value, clearing any tombstone. Both maps are
// held under their writer locks for the duration of the update so a
// concurrent reader never observes key in both buffer and tombstones.
func (c *Cache) Set(key, value []byte) error {
	sk := string(key)
	stored := append([]byte(nil), value...)

	c.tombstoneMu.Lock()
	defer c.tombstoneMu.Unlock()
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()

	delete(c.tombstones, sk)
	c.buffer[sk] = stored

	return nil
}

// Delete removes key from the buffer and marks it tombstoned, under
// both writer locks at once; see Set.
func (c *Cache) Delete(key []byte) error {
	sk := string(key)

	c.tombstoneMu.Lock()
	defer c.tombstoneMu.Unlock()
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()

	delete(c.buffer, sk)
	c.tombstones[sk] = struct{}{}

	return nil
}

// Commit writes every buffered value through to backing storage in key
// order, then applies every tombstoned delete. There is no rollback on
// partial failure: the backing store is expected to be durable per-op,
// and the overlay is single-batch and discarded either way.
func (c *Cache) Commit() error {
	c.bufferMu.RLock()
	keys := make([]string, 0, len(c.buffer))
	for k := range c.buffer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make(map[string][]byte, len(c.buffer))
	for _, k := range keys {
		values[k] = c.buffer[k]
	}
	c.bufferMu.RUnlock()

	for _, k := range keys {
		if err := c.backing.Set([]byte(k), values[k]); err != nil {
			return fmt.Errorf("overlay: commit set %q: %w", k, err)
		}
	}

	c.tombstoneMu.RLock()
	tombstoned := make([]string, 0, len(c.tombstones))
	for k := range c.tombstones {
		tombstoned = append(tombstoned, k)
	}
	c.tombstoneMu.RUnlock()

	for _, k := range tombstoned {
		if err := c.backing.Delete([]byte(k)); err != nil {
			return fmt.Errorf("overlay: commit delete %q: %w", k, err)
		}
	}

	return nil
}

var _ storage.Store = (*Cache)(nil)
