// Package hostvm is the per-invocation WASM instance lifecycle: a
// Context shared with the guest's imports, the storage_* host imports
// themselves, and the Runtime that compiles, instantiates, wires, and
// calls into a live object's module.
package hostvm

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/concretevm/liveobject/overlay"
)

// Context is the host-side environment shared by every import function
// a single WASM instance calls into. memory and allocate are late-bound:
// they are unknown until instantiation completes, so Runtime installs
// them once, after linking, and the imports never observe them before
// that point.
type Context struct {
	Storage   *overlay.Cache
	KeyPrefix []byte

	memory   api.Memory
	allocate api.Function
}

// PrefixKey namespaces a guest-visible key under this live object's id,
// so two live objects can never collide in the shared overlay.
func (c *Context) PrefixKey(key []byte) []byte {
	prefixed := make([]byte, 0, len(c.KeyPrefix)+len(key))
	prefixed = append(prefixed, c.KeyPrefix...)
	prefixed = append(prefixed, key...)
	return prefixed
}

// wire installs the late-bound guest handles. Called exactly once, by
// Runtime, after instantiation and before any import can be invoked by
// guest code running past the start function.
func (c *Context) wire(memory api.Memory, allocate api.Function) {
	c.memory = memory
	c.allocate = allocate
}
